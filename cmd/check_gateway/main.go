package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/cpr_daily_bot/internal/infrastructure/exchange"
	"github.com/vitos/cpr_daily_bot/internal/usecase"
	"go.uber.org/zap"
)

// Connectivity check: public endpoints first, then the signed ones, then a
// pivot computed from real candles. No orders are placed.
func main() {
	_ = godotenv.Load()

	symbol := "BTCUSDT"
	if len(os.Args) > 1 {
		symbol = os.Args[1]
	}

	apiKey := os.Getenv("PHEMEX_API_KEY")
	apiSecret := os.Getenv("PHEMEX_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		fmt.Println("PHEMEX_API_KEY and PHEMEX_API_SECRET must be set")
		os.Exit(1)
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	adapter := exchange.NewPhemexAdapter(apiKey, apiSecret, "", "", log)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	keyHint := apiKey
	if len(keyHint) > 4 {
		keyHint = keyHint[:4]
	}
	fmt.Printf("Testing gateway for %s...\n", symbol)
	fmt.Printf("API Key: %s...\n", keyHint)

	// Public: last price
	price, err := adapter.GetTicker(ctx, symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get ticker: %v\n", err)
	} else {
		fmt.Printf("✅ Last price: %g\n", price)
	}

	// Public: product metadata
	product, err := adapter.FetchProductInfo(ctx, symbol)
	if err != nil {
		fmt.Printf("❌ Failed to fetch product info: %v\n", err)
	} else {
		fmt.Printf("✅ Product: tick=%g step=%g maxLeverage=%d\n",
			product.PriceTickSize, product.QtyStepSize, product.MaxLeverage)
	}

	// Public: candles and pivot math
	candles, err := adapter.GetCandles(ctx, symbol, "1d", 5)
	if err != nil {
		fmt.Printf("❌ Failed to fetch candles: %v\n", err)
	} else if len(candles) >= 2 {
		prev := candles[len(candles)-2]
		top, center, bottom := usecase.PivotRange(prev.High, prev.Low, prev.Close)
		fmt.Printf("✅ Candles: %d rows, today open=%g\n", len(candles), candles[len(candles)-1].Open)
		fmt.Printf("✅ Pivot range: top=%g center=%g bottom=%g\n", top, center, bottom)
	} else {
		fmt.Printf("❌ Not enough candles returned: %d\n", len(candles))
	}

	// Signed: balance
	balance, err := adapter.QueryBalance(ctx, "USDT")
	if err != nil {
		fmt.Printf("❌ Failed to query balance: %v\n", err)
	} else {
		fmt.Printf("✅ Balance: total=%.2f available=%.2f\n", balance.Total, balance.Available)
	}

	// Signed: positions
	positions, err := adapter.QueryPositions(ctx, "USDT")
	if err != nil {
		fmt.Printf("❌ Failed to query positions: %v\n", err)
	} else {
		fmt.Printf("✅ Open positions: %d\n", len(positions))
		for _, p := range positions {
			fmt.Printf("   %s %s size=%g entry=%g\n", p.Symbol, p.Side, p.Size, p.AvgEntryPrice)
		}
	}
}
