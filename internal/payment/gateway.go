// Package payment talks to the hosted checkout provider. The checkout core
// depends only on Gateway so tests and local runs can swap in MemoryGateway.
package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"storefront/internal/domain"
)

const StatusPaid = "paid"

// Session is the part of a provider checkout session the store relies on.
type Session struct {
	ID             string
	PaymentStatus  string
	Metadata       map[string]string
	AmountSubtotal int64
	AmountTotal    int64
	CustomerEmail  string
	URL            string
}

func (s Session) Paid() bool { return s.PaymentStatus == StatusPaid }

type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

type SessionRequest struct {
	Currency     string
	Email        string
	LineItems    []LineItem
	ShippingName string
	ShippingCost int64
	Metadata     map[string]string
	SuccessURL   string
	CancelURL    string
}

type Gateway interface {
	RetrieveSession(ctx context.Context, ref string) (Session, error)
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}

// CheckoutMetadata is what a session must carry for the webhook to rebuild the checkout.
type CheckoutMetadata struct {
	CartID   string
	Email    string
	UserID   string
	Shipping domain.ShippingInfo
}

const (
	metaCartID   = "cart_id"
	metaEmail    = "email"
	metaUserID   = "user_id"
	metaName     = "shipping_name"
	metaStreet   = "shipping_street"
	metaCity     = "shipping_city"
	metaState    = "shipping_state"
	metaPostal   = "shipping_postal"
	metaCountry  = "shipping_country"
	metaMethodID = "shipping_method_id"
	metaCost     = "shipping_cost"
)

func (m CheckoutMetadata) Encode() map[string]string {
	out := map[string]string{
		metaCartID:   m.CartID,
		metaEmail:    m.Email,
		metaName:     m.Shipping.Name,
		metaStreet:   m.Shipping.Street,
		metaCity:     m.Shipping.City,
		metaState:    m.Shipping.State,
		metaPostal:   m.Shipping.PostalCode,
		metaCountry:  m.Shipping.Country,
		metaMethodID: m.Shipping.MethodID,
		metaCost:     strconv.FormatInt(m.Shipping.Cost, 10),
	}
	if m.UserID != "" {
		out[metaUserID] = m.UserID
	}
	return out
}

// DecodeMetadata fails with domain.ErrInvalidSession when the cart id or
// email is missing. The session's own customer email is used when the
// metadata has none.
func DecodeMetadata(s Session) (CheckoutMetadata, error) {
	md := s.Metadata
	m := CheckoutMetadata{
		CartID: md[metaCartID],
		Email:  md[metaEmail],
		UserID: md[metaUserID],
		Shipping: domain.ShippingInfo{
			Name:       md[metaName],
			Street:     md[metaStreet],
			City:       md[metaCity],
			State:      md[metaState],
			PostalCode: md[metaPostal],
			Country:    md[metaCountry],
			MethodID:   md[metaMethodID],
		},
	}
	if m.Email == "" {
		m.Email = s.CustomerEmail
	}
	if m.CartID == "" || m.Email == "" {
		return CheckoutMetadata{}, fmt.Errorf("session %s: %w", s.ID, domain.ErrInvalidSession)
	}
	if raw := md[metaCost]; raw != "" {
		cost, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || cost < 0 {
			return CheckoutMetadata{}, fmt.Errorf("session %s shipping cost %q: %w", s.ID, raw, domain.ErrInvalidSession)
		}
		m.Shipping.Cost = cost
	}
	return m, nil
}

// SessionIDPlaceholder is expanded by the provider in success URLs.
const SessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

func fillSessionID(url, id string) string {
	return strings.ReplaceAll(url, SessionIDPlaceholder, id)
}
