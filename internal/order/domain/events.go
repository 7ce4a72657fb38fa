package domain

type OrderCreated struct {
	OrderID    string     `json:"order_id"`
	Region     string     `json:"region"`
	TotalCents int64      `json:"total_cents"`
	Items      []LineItem `json:"items"`
}

type OrderStatusChanged struct {
	OrderID string            `json:"order_id"`
	From    FulfillmentStatus `json:"from"`
	To      FulfillmentStatus `json:"to"`
	Note    string            `json:"note,omitempty"`
}
