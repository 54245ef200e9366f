package domain

import "time"

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusShipped   OrderStatus = "SHIPPED"
	StatusDelivered OrderStatus = "DELIVERED"
	StatusCancelled OrderStatus = "CANCELLED"
)

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

type Order struct {
	ID             string       `json:"id"`
	Number         string       `json:"number"`
	CartID         string       `json:"cartId"`
	UserID         string       `json:"userId,omitempty"`
	Email          string       `json:"email"`
	Shipping       ShippingInfo `json:"shipping"`
	Subtotal       int64        `json:"subtotal"`
	Total          int64        `json:"total"`
	PaymentRef     string       `json:"paymentRef"`
	Status         OrderStatus  `json:"status"`
	Carrier        string       `json:"carrier,omitempty"`
	TrackingNumber string       `json:"trackingNumber,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	Items          []OrderItem  `json:"items,omitempty"`
}

// OrderItem.Price is the unit price captured when the order was written.
type OrderItem struct {
	ID          string `json:"id" db:"id"`
	OrderID     string `json:"orderId" db:"order_id"`
	ProductID   string `json:"productId" db:"product_id"`
	VariantID   string `json:"variantId,omitempty" db:"variant_id"`
	ProductName string `json:"productName" db:"product_name"`
	Price       int64  `json:"price" db:"price"`
	Quantity    int    `json:"quantity" db:"quantity"`
}

// OrderDraft is everything the assembler needs besides the cart and the allocated number.
type OrderDraft struct {
	Email      string
	UserID     string
	Shipping   ShippingInfo
	PaymentRef string
	Subtotal   int64
	Total      int64
}

// OrderCreated is the outbox payload emitted once an order commits.
type OrderCreated struct {
	OrderID    string           `json:"orderId"`
	Number     string           `json:"number"`
	Email      string           `json:"email"`
	Total      int64            `json:"total"`
	PaymentRef string           `json:"paymentRef"`
	Items      []OrderCreatedLn `json:"items"`
	CreatedAt  time.Time        `json:"createdAt"`
}

type OrderCreatedLn struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}
