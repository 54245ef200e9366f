package domain

type RateType string

const (
	RateFlat        RateType = "FLAT"
	RateWeightBased RateType = "WEIGHT_BASED"
	RatePriceBased  RateType = "PRICE_BASED"
	RateFree        RateType = "FREE"
)

// PriceRate is an inclusive [MinPrice, MaxPrice] subtotal bracket.
type PriceRate struct {
	MinPrice int64 `json:"minPrice" db:"min_price"`
	MaxPrice int64 `json:"maxPrice" db:"max_price"`
	Rate     int64 `json:"rate" db:"rate"`
}

type ShippingMethod struct {
	ID                    string      `json:"id"`
	Name                  string      `json:"name"`
	RateType              RateType    `json:"rateType"`
	FlatRate              *int64      `json:"flatRate,omitempty"`
	PriceRates            []PriceRate `json:"priceRates,omitempty"`
	FreeShippingThreshold *int64      `json:"freeShippingThreshold,omitempty"`
	IsActive              bool        `json:"isActive"`
}

// ShippingInfo is the address and method chosen at checkout. It is copied by
// value onto the order.
type ShippingInfo struct {
	Name       string `json:"name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	MethodID   string `json:"methodId"`
	Cost       int64  `json:"cost"`
}
