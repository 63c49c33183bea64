package domain

// OrderUpdate is a push event from the gateway's order stream.
type OrderUpdate struct {
	OrderID string
	Symbol  string
	Side    Side
	Status  string
	CumQty  float64
	Qty     float64
}

// PositionUpdate is a push event from the gateway's position stream.
type PositionUpdate struct {
	Symbol string
	Side   Side
	Size   float64
}

// AccountUpdate is a push event carrying balance changes.
type AccountUpdate struct {
	Currency  string
	Total     float64
	Available float64
}

// Order status strings as delivered by the venue. Both spellings of
// cancelled appear in the wild.
const (
	OrderStatusNew             = "New"
	OrderStatusPartiallyFilled = "PartiallyFilled"
	OrderStatusFilled          = "Filled"
	OrderStatusFullyFilled     = "FullyFilled"
	OrderStatusCanceled        = "Canceled"
	OrderStatusRejected        = "Rejected"
)

func OrderStatusIsFilled(status string) bool {
	return status == OrderStatusFilled || status == OrderStatusFullyFilled
}

func OrderStatusIsDead(status string) bool {
	switch status {
	case OrderStatusCanceled, "Cancelled", OrderStatusRejected:
		return true
	}
	return false
}
