package events

// Event enumerates high-level topics inside the simulator.
type Event string

const (
	EventPriceTick      Event = "price_tick"
	EventOrderSubmitted Event = "order.submitted"
	EventOrderFilled    Event = "order.filled"
	EventOrderCanceled  Event = "order.canceled"
	EventSnapshot       Event = "session.snapshot"
)

// Tick is the payload published on EventPriceTick.
type Tick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	At     int64   `json:"at"` // unix millis
}
