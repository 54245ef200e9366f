package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"

	"storefront/internal/domain"
)

// StripeGateway holds its own API client rather than the package-level stripe.Key.
type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	return NewStripeGatewayWithBackends(secretKey, nil)
}

// NewStripeGatewayWithBackends talks to the given backends; nil means the
// default Stripe endpoints.
func NewStripeGatewayWithBackends(secretKey string, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{api: client.New(secretKey, backends)}
}

func (g *StripeGateway) RetrieveSession(ctx context.Context, ref string) (Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := g.api.CheckoutSessions.Get(ref, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Code == stripe.ErrorCodeResourceMissing {
			return Session{}, fmt.Errorf("stripe: session %s: %w", ref, domain.ErrNotFound)
		}
		return Session{}, fmt.Errorf("stripe: retrieve session %s: %w", ref, err)
	}
	return fromStripe(cs), nil
}

func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(req.SuccessURL),
		CancelURL:     stripe.String(req.CancelURL),
		CustomerEmail: stripe.String(req.Email),
		Metadata:      req.Metadata,
	}
	params.Context = ctx
	for _, li := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(li.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				UnitAmount:  stripe.Int64(li.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(li.Name)},
			},
		})
	}
	if req.ShippingName != "" {
		params.ShippingOptions = []*stripe.CheckoutSessionShippingOptionParams{{
			ShippingRateData: &stripe.CheckoutSessionShippingOptionShippingRateDataParams{
				DisplayName: stripe.String(req.ShippingName),
				Type:        stripe.String("fixed_amount"),
				FixedAmount: &stripe.CheckoutSessionShippingOptionShippingRateDataFixedAmountParams{
					Amount:   stripe.Int64(req.ShippingCost),
					Currency: stripe.String(req.Currency),
				},
			},
		}}
	}
	cs, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("stripe: create session: %w", err)
	}
	return fromStripe(cs), nil
}

func fromStripe(cs *stripe.CheckoutSession) Session {
	s := Session{
		ID:             cs.ID,
		PaymentStatus:  string(cs.PaymentStatus),
		Metadata:       cs.Metadata,
		AmountSubtotal: cs.AmountSubtotal,
		AmountTotal:    cs.AmountTotal,
		URL:            cs.URL,
	}
	if cs.CustomerDetails != nil {
		s.CustomerEmail = cs.CustomerDetails.Email
	}
	if s.CustomerEmail == "" {
		s.CustomerEmail = cs.CustomerEmail
	}
	return s
}

// Event types that mean a checkout session has been paid for.
const (
	EventSessionCompleted      = string(stripe.EventTypeCheckoutSessionCompleted)
	EventAsyncPaymentSucceeded = string(stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded)
)

// WebhookEvent is a verified provider notification.
type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string
}

// VerifyWebhook checks the Stripe-Signature header against secret and extracts
// the checkout session id. Events that are not about a checkout session come
// back with an empty SessionID.
func VerifyWebhook(payload []byte, sigHeader, secret string) (WebhookEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return WebhookEvent{}, err
	}
	out := WebhookEvent{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data != nil && ev.Data.Object != nil {
		if obj, _ := ev.Data.Object["object"].(string); obj == "checkout.session" {
			out.SessionID, _ = ev.Data.Object["id"].(string)
		}
	}
	return out, nil
}
