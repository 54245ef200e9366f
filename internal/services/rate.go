package services

import "storefront/internal/domain"

// ComputeShippingCost prices a shipment for the given order subtotal. It has no
// side effects and never fails: an unusable method prices at 0.
func ComputeShippingCost(method domain.ShippingMethod, subtotal int64) int64 {
	switch method.RateType {
	case domain.RateFlat:
		return deref(method.FlatRate)
	case domain.RatePriceBased:
		for _, r := range method.PriceRates {
			if subtotal >= r.MinPrice && subtotal <= r.MaxPrice {
				return r.Rate
			}
		}
		return 0
	case domain.RateFree:
		if method.FreeShippingThreshold == nil {
			return 0
		}
		if subtotal >= *method.FreeShippingThreshold {
			return 0
		}
		return deref(method.FlatRate)
	case domain.RateWeightBased:
		// no weight brackets yet; charged at the flat rate
		return deref(method.FlatRate)
	}
	return 0
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
