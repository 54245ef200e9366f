package domain

// Product prices and weights are integers: prices in minor currency units (cents), weights in grams.
type Product struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Price       int64      `json:"price"`
	Stock       StockLevel `json:"stock"`
	WeightGrams *int64     `json:"weightGrams,omitempty"`
	Active      bool       `json:"active"`
}

type ProductVariant struct {
	ID          string `json:"id"`
	ProductID   string `json:"productId"`
	Name        string `json:"name"`
	Price       *int64 `json:"price,omitempty"` // nil inherits the product price
	Stock       int    `json:"stock"`
	WeightGrams *int64 `json:"weightGrams,omitempty"`
}

type Cart struct {
	ID     string
	UserID string
	Items  []CartItem
}

// CartItem carries no price of its own; the joined product/variant fields are
// what the order price snapshot is taken from.
type CartItem struct {
	ID          string
	CartID      string
	ProductID   string
	VariantID   string // empty when no variant is attached
	Quantity    int
	ProductName string
	VariantName string

	ProductPrice int64
	VariantPrice *int64
	ProductStock StockLevel
	VariantStock int
}

func (it CartItem) HasVariant() bool { return it.VariantID != "" }

// EffectivePrice is the variant price when a variant with its own price is attached,
// otherwise the product price.
func (it CartItem) EffectivePrice() int64 {
	if it.HasVariant() && it.VariantPrice != nil {
		return *it.VariantPrice
	}
	return it.ProductPrice
}

// DisplayName is used in stock shortfall messages.
func (it CartItem) DisplayName() string {
	if it.VariantName != "" {
		return it.ProductName + " (" + it.VariantName + ")"
	}
	return it.ProductName
}

// Subtotal sums effective price × quantity over the cart.
func (c Cart) Subtotal() int64 {
	var total int64
	for _, it := range c.Items {
		total += it.EffectivePrice() * int64(it.Quantity)
	}
	return total
}
