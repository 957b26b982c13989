package domain

import "time"

type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "active"
	OrderStatusExpired   OrderStatus = "expired"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further status transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusExpired || s == OrderStatusCancelled
}

type ProductKind string

const (
	ProductFlight    ProductKind = "flight"
	ProductLodging   ProductKind = "lodging"
	ProductInsurance ProductKind = "insurance"
)

// Valid reports whether the kind is one of the sellable products.
func (k ProductKind) Valid() bool {
	switch k {
	case ProductFlight, ProductLodging, ProductInsurance:
		return true
	}
	return false
}

// TripDetails carries the trip attributes forwarded to reservation
// providers. The core never interprets them beyond the travel date,
// which feeds risk scoring.
type TripDetails struct {
	Origin      string
	Destination string
	TravelDate  time.Time
	Passengers  int
	VisaType    string
}

// Order is a purchased document bundle with a bounded validity window.
type Order struct {
	ID            string
	Owner         string
	Bundle        []ProductKind
	Confirmations map[ProductKind]string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Status        OrderStatus
	Risk          RiskAssessment
	Trip          TripDetails
	CancelReason  string
	WarnedAt      *time.Time
	UpdatedAt     time.Time
}
