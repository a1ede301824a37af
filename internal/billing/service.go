// Package billing sells credits through Stripe Checkout and applies them to
// accounts when Stripe reports a completed session.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	u "mockup/internal/utils"
)

const metadataUserID = "userId"

// Config carries the Stripe identifiers and credit amounts.
type Config struct {
	WebhookSecret       string
	SubscriptionPriceID string
	CreditsPriceID      string
	SubscriptionCredits int
	CreditsPackCredits  int
	DefaultOrigin       string
}

// CheckoutRequest asks for a checkout page for one price.
type CheckoutRequest struct {
	UserID  string
	Email   string
	PriceID string
	Origin  string
	// IdempotencyKey is the client's retry key; one is generated when empty.
	IdempotencyKey string
}

// CheckoutSession identifies the hosted checkout page.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// WebhookResult describes what an event did.
type WebhookResult struct {
	EventID   string `json:"eventId"`
	Type      string `json:"type"`
	UserID    string `json:"userId,omitempty"`
	Credited  int    `json:"credited"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// Service implements checkout creation and webhook handling.
type Service struct {
	gw    Gateway
	store AccountStore
	cfg   Config
}

// NewService wires the gateway and store.
func NewService(gw Gateway, store AccountStore, cfg Config) *Service {
	return &Service{gw: gw, store: store, cfg: cfg}
}

// CreateCheckout opens a checkout session. Recurring prices start a
// subscription, everything else is a one-off payment.
func (s *Service) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if req.UserID == "" {
		return CheckoutSession{}, fmt.Errorf("%w: user is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.PriceID) == "" {
		return CheckoutSession{}, fmt.Errorf("%w: price id is required", ErrInvalidRequest)
	}
	origin := strings.TrimRight(req.Origin, "/")
	if origin == "" {
		origin = strings.TrimRight(s.cfg.DefaultOrigin, "/")
	}
	if o, err := url.Parse(origin); err != nil || (o.Scheme != "http" && o.Scheme != "https") || o.Host == "" {
		return CheckoutSession{}, fmt.Errorf("%w: origin must be an absolute http(s) URL", ErrInvalidRequest)
	}
	if err := ctx.Err(); err != nil {
		return CheckoutSession{}, err
	}

	p, err := s.gw.GetPrice(req.PriceID)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%w: get price %s: %v", ErrGateway, req.PriceID, err)
	}
	mode := stripe.CheckoutSessionModePayment
	if p.Type == stripe.PriceTypeRecurring {
		mode = stripe.CheckoutSessionModeSubscription
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	sess, err := s.gw.NewCheckoutSession(CheckoutParams{
		Mode:           mode,
		PriceID:        req.PriceID,
		SuccessURL:     origin + "?payment=success&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:      origin + "?payment=cancelled",
		CustomerEmail:  req.Email,
		UserID:         req.UserID,
		IdempotencyKey: key,
	})
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%w: create checkout session: %v", ErrGateway, err)
	}

	u.Info("Checkout session created", "session_id", sess.ID, "user_id", req.UserID, "mode", string(mode))
	return CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// HandleWebhook verifies and applies a Stripe event. Store failures are
// logged and the event is still acknowledged.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	if s.cfg.WebhookSecret == "" {
		return WebhookResult{}, ErrNotConfigured
	}
	if strings.TrimSpace(signature) == "" {
		return WebhookResult{}, fmt.Errorf("%w: missing Stripe-Signature header", ErrBadSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookResult{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	res := WebhookResult{EventID: event.ID, Type: string(event.Type)}
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		u.Info("Stripe webhook ignored", "type", res.Type, "event_id", event.ID)
		return res, nil
	}
	if event.Data == nil {
		return res, fmt.Errorf("%w: event has no data", ErrBadEvent)
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return res, fmt.Errorf("%w: decode checkout session: %v", ErrBadEvent, err)
	}
	userID := sess.Metadata[metadataUserID]
	if userID == "" {
		return res, fmt.Errorf("%w: session %s has no userId metadata", ErrBadEvent, sess.ID)
	}
	res.UserID = userID

	priceID, err := s.gw.SessionPriceID(sess.ID)
	if err != nil {
		return res, fmt.Errorf("%w: list line items of %s: %v", ErrGateway, sess.ID, err)
	}
	if priceID == "" {
		return res, fmt.Errorf("%w: session %s has no price", ErrBadEvent, sess.ID)
	}

	credit := Credit{EventID: event.ID, UserID: userID}
	switch priceID {
	case s.cfg.SubscriptionPriceID:
		credit.Amount = s.cfg.SubscriptionCredits
		credit.Status = StatusActive
	case s.cfg.CreditsPriceID:
		credit.Amount = s.cfg.CreditsPackCredits
	}
	if credit.Amount <= 0 {
		u.Warn("Checkout completed for an unknown price", "price_id", priceID, "session_id", sess.ID)
		return res, nil
	}

	applied, err := s.store.ApplyCredit(ctx, credit)
	if err != nil {
		u.Error("Failed to credit account", "user_id", userID, "event_id", event.ID, "error", err)
		return res, nil
	}
	if !applied {
		res.Duplicate = true
		u.Info("Stripe event already applied", "event_id", event.ID, "user_id", userID)
		return res, nil
	}

	res.Credited = credit.Amount
	u.Info("Credits added", "user_id", userID, "credits", credit.Amount, "status", credit.Status, "event_id", event.ID)
	return res, nil
}

// Account returns the caller's balance.
func (s *Service) Account(ctx context.Context, userID string) (Account, error) {
	if userID == "" {
		return Account{}, fmt.Errorf("%w: user is required", ErrInvalidRequest)
	}
	return s.store.GetAccount(ctx, userID)
}
