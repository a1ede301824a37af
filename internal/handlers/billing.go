package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"mockup/internal/billing"
	"mockup/internal/metrics"
	u "mockup/internal/utils"
)

// BillingService exposes checkout, webhook and account endpoints. A nil
// Billing answers 503.
type BillingService struct {
	Billing *billing.Service
}

// NewBillingService creates a BillingService.
func NewBillingService(b *billing.Service) *BillingService {
	return &BillingService{Billing: b}
}

type checkoutBody struct {
	PriceID string `json:"priceId"`
}

// currentUser resolves the API key that authenticated the request.
func currentUser(c *fiber.Ctx) (u.TokenInfo, error) {
	token, _ := c.Locals("api_key").(string)
	if token == "" {
		return u.TokenInfo{}, fiber.NewError(fiber.StatusUnauthorized, "Missing API key")
	}
	info, ok := u.LookupToken(token)
	if !ok || info.UserID == "" {
		return u.TokenInfo{}, fiber.NewError(fiber.StatusForbidden, "API key is not bound to an account")
	}
	return info, nil
}

// HandleCheckout creates a Stripe Checkout session for the caller.
func (svc *BillingService) HandleCheckout(c *fiber.Ctx) error {
	if svc.Billing == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Billing is not configured")
	}
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var body checkoutBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
	}
	if strings.TrimSpace(body.PriceID) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Price ID is required")
	}

	sess, err := svc.Billing.CreateCheckout(c.UserContext(), billing.CheckoutRequest{
		UserID:         user.UserID,
		Email:          user.Email,
		PriceID:        body.PriceID,
		Origin:         c.Get(fiber.HeaderOrigin),
		IdempotencyKey: c.Get("Idempotency-Key"),
	})
	if err != nil {
		return billingError(err)
	}
	return c.JSON(sess)
}

// HandleWebhook verifies and applies a Stripe event. It needs the raw body.
func (svc *BillingService) HandleWebhook(c *fiber.Ctx) error {
	if svc.Billing == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Billing is not configured")
	}
	res, err := svc.Billing.HandleWebhook(c.UserContext(), c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		metrics.RecordWebhook(res.Type, "rejected", 0)
		u.Warn("Stripe webhook rejected", "event_id", res.EventID, "error", err)
		return billingError(err)
	}

	outcome := "processed"
	if res.Duplicate {
		outcome = "duplicate"
	}
	metrics.RecordWebhook(res.Type, outcome, res.Credited)
	return c.JSON(fiber.Map{"received": true})
}

// HandleAccount returns the caller's credits and subscription status.
func (svc *BillingService) HandleAccount(c *fiber.Ctx) error {
	if svc.Billing == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Billing is not configured")
	}
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	acc, err := svc.Billing.Account(c.UserContext(), user.UserID)
	if err != nil {
		return billingError(err)
	}
	return c.JSON(acc)
}

func billingError(err error) *fiber.Error {
	switch {
	case errors.Is(err, billing.ErrInvalidRequest):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, billing.ErrBadSignature):
		return fiber.NewError(fiber.StatusBadRequest, "Webhook signature verification failed")
	case errors.Is(err, billing.ErrBadEvent):
		return fiber.NewError(fiber.StatusBadRequest, "Missing metadata")
	case errors.Is(err, billing.ErrNotConfigured):
		return fiber.NewError(fiber.StatusServiceUnavailable, "Billing is not configured")
	case errors.Is(err, billing.ErrGateway):
		u.Error("Stripe request failed", "error", err)
		return fiber.NewError(fiber.StatusBadGateway, "Payment provider error")
	default:
		u.Error("Billing request failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Internal Server Error")
	}
}
