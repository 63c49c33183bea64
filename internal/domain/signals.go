package domain

type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Signals is the daily decision input: the pivot range derived from the
// previous day's candle, the MA filter pair and today's open.
type Signals struct {
	PivotTop    float64 `json:"pivot_top"`
	PivotCenter float64 `json:"pivot_center"`
	PivotBottom float64 `json:"pivot_bottom"`
	FastMA      float64 `json:"fast_ma"`
	SlowMA      float64 `json:"slow_ma"`
	DailyOpen   float64 `json:"daily_open"`
}
