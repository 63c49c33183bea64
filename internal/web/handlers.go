package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const defaultTradeListLimit = 50

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statusResponse struct {
	State     string          `json:"state"`
	Pending   *pendingView    `json:"pending,omitempty"`
	Position  *positionView   `json:"position,omitempty"`
	Balance   balanceView     `json:"balance"`
	NextEntry time.Time       `json:"next_entry_check"`
	NextEOD   time.Time       `json:"next_eod_exit"`
	Triggers  map[string]bool `json:"triggers"`
}

type pendingView struct {
	OrderID    string    `json:"order_id"`
	Side       string    `json:"side"`
	Qty        float64   `json:"qty"`
	LimitPrice float64   `json:"limit_price"`
	Status     string    `json:"status"`
	PlacedAt   time.Time `json:"placed_at"`
}

type positionView struct {
	EntryPrice float64 `json:"entry_price"`
	Qty        float64 `json:"qty"`
	TakeProfit float64 `json:"take_profit"`
	StopLoss   float64 `json:"stop_loss"`
}

type balanceView struct {
	Total     float64   `json:"total"`
	Available float64   `json:"available"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.orchestrator.Book().Snapshot()
	account := s.accounts.Snapshot()
	nextEntry, nextEOD := s.scheduler.NextWindows()

	resp := statusResponse{
		State: string(snap.State),
		Balance: balanceView{
			Total:     account.Total,
			Available: account.Available,
			UpdatedAt: account.UpdatedAt,
		},
		NextEntry: nextEntry,
		NextEOD:   nextEOD,
		Triggers: map[string]bool{
			"take_profit": s.orchestrator.TakeProfitTrigger().Fired(),
			"stop_loss":   s.orchestrator.StopLossTrigger().Fired(),
		},
	}
	if snap.Pending != nil {
		resp.Pending = &pendingView{
			OrderID:    snap.Pending.OrderID,
			Side:       string(snap.Pending.Side),
			Qty:        snap.Pending.Qty,
			LimitPrice: snap.Pending.LimitPrice,
			Status:     snap.Pending.Status,
			PlacedAt:   snap.Pending.PlacedAt,
		}
	}
	if snap.Position != nil {
		resp.Position = &positionView{
			EntryPrice: snap.Position.EntryPrice,
			Qty:        snap.Position.Qty,
			TakeProfit: snap.Position.TakeProfit,
			StopLoss:   snap.Position.StopLoss,
		}
	}

	s.writeJSON(w, resp)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradeListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	records, err := s.tradeRepo.ListTradeRecords(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list trade records", zap.Error(err))
		http.Error(w, "Failed to list trades", http.StatusInternalServerError)
		return
	}

	type tradeView struct {
		ID        int64     `json:"id"`
		Symbol    string    `json:"symbol"`
		Event     string    `json:"event"`
		OrderID   string    `json:"order_id,omitempty"`
		Side      string    `json:"side,omitempty"`
		Qty       float64   `json:"qty"`
		Price     float64   `json:"price"`
		Note      string    `json:"note,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}

	views := make([]tradeView, 0, len(records))
	for _, rec := range records {
		views = append(views, tradeView{
			ID:        rec.ID,
			Symbol:    rec.Symbol,
			Event:     rec.Event,
			OrderID:   rec.OrderID,
			Side:      string(rec.Side),
			Qty:       rec.Qty,
			Price:     rec.Price,
			Note:      rec.Note,
			CreatedAt: rec.CreatedAt,
		})
	}

	s.writeJSON(w, views)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
