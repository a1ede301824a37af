package billing

import (
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/price"
)

// CheckoutParams is everything needed to open a hosted checkout page.
type CheckoutParams struct {
	Mode          stripe.CheckoutSessionMode
	PriceID       string
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	UserID        string
	// IdempotencyKey makes a retried create return the same session.
	IdempotencyKey string
}

// Gateway abstracts the Stripe operations billing needs. Methods return
// values so fakes stay trivial.
type Gateway interface {
	GetPrice(id string) (stripe.Price, error)
	NewCheckoutSession(p CheckoutParams) (stripe.CheckoutSession, error)
	SessionPriceID(sessionID string) (string, error)
}

// SetKey configures the Stripe SDK key once during bootstrap.
func SetKey(key string) { stripe.Key = key }

type stripeGateway struct{}

// NewStripeGateway returns a Gateway backed by the Stripe SDK.
func NewStripeGateway() Gateway { return stripeGateway{} }

func (stripeGateway) GetPrice(id string) (stripe.Price, error) {
	p, err := price.Get(id, nil)
	if err != nil {
		return stripe.Price{}, err
	}
	if p == nil {
		return stripe.Price{}, nil
	}
	return *p, nil
}

func (stripeGateway) NewCheckoutSession(p CheckoutParams) (stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(p.PriceID),
			Quantity: stripe.Int64(1),
		}},
		Mode:              stripe.String(string(p.Mode)),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ClientReferenceID: stripe.String(p.UserID),
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	params.AddMetadata(metadataUserID, p.UserID)
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	s, err := session.New(params)
	if err != nil {
		return stripe.CheckoutSession{}, err
	}
	if s == nil {
		return stripe.CheckoutSession{}, nil
	}
	return *s, nil
}

// SessionPriceID returns the price of the session's first line item, or ""
// when the session has none.
func (stripeGateway) SessionPriceID(sessionID string) (string, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Limit = stripe.Int64(1)

	it := session.ListLineItems(params)
	if it.Next() {
		if li := it.LineItem(); li != nil && li.Price != nil {
			return li.Price.ID, nil
		}
		return "", nil
	}
	return "", it.Err()
}
