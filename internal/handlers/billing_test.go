package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"mockup/internal/billing"
	u "mockup/internal/utils"
)

const testWebhookSecret = "whsec_handlers"

type stubGateway struct {
	lastParams billing.CheckoutParams
}

func (g *stubGateway) GetPrice(id string) (stripe.Price, error) {
	return stripe.Price{ID: id, Type: stripe.PriceTypeRecurring}, nil
}

func (g *stubGateway) NewCheckoutSession(p billing.CheckoutParams) (stripe.CheckoutSession, error) {
	g.lastParams = p
	return stripe.CheckoutSession{ID: "cs_handler", URL: "https://checkout.stripe.com/c/pay/cs_handler"}, nil
}

func (g *stubGateway) SessionPriceID(string) (string, error) { return "price_credits", nil }

type memAccounts struct {
	credits map[string]int64
}

func (m *memAccounts) ApplyCredit(_ context.Context, c billing.Credit) (bool, error) {
	m.credits[c.UserID] += int64(c.Amount)
	return true, nil
}

func (m *memAccounts) GetAccount(_ context.Context, userID string) (billing.Account, error) {
	return billing.Account{UserID: userID, Credits: m.credits[userID], SubscriptionStatus: billing.StatusFree}, nil
}

func billingApp(svc *BillingService) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if key := c.Get("X-API-Key"); key != "" {
			c.Locals("api_key", key)
		}
		return c.Next()
	})
	app.Post("/v1/billing/checkout", svc.HandleCheckout)
	app.Post("/v1/billing/webhook", svc.HandleWebhook)
	app.Get("/v1/account", svc.HandleAccount)
	return app
}

func newBillingFixture(t *testing.T) (*fiber.App, *stubGateway, *memAccounts) {
	t.Helper()
	u.LoadTokens(map[string]u.TokenInfo{
		"key-user-1": {RateLimit: 0, UserID: "user-1", Email: "one@example.com"},
		"key-orphan": {RateLimit: 0},
	})
	t.Cleanup(func() { u.LoadTokens(nil) })

	gw := &stubGateway{}
	store := &memAccounts{credits: map[string]int64{}}
	svc := billing.NewService(gw, store, billing.Config{
		WebhookSecret:      testWebhookSecret,
		CreditsPriceID:     "price_credits",
		CreditsPackCredits: 40,
		DefaultOrigin:      "https://mockups.example.com",
	})
	return billingApp(NewBillingService(svc)), gw, store
}

func checkoutRequest(key, body string) *http.Request {
	req := httptest.NewRequest("POST", "/v1/billing/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://app.example.com")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	return req
}

func TestHandleCheckout(t *testing.T) {
	app, gw, _ := newBillingFixture(t)

	resp, err := app.Test(checkoutRequest("key-user-1", `{"priceId":"price_sub"}`), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200 got %d: %s", resp.StatusCode, body)
	}
	var sess billing.CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.ID != "cs_handler" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if gw.lastParams.UserID != "user-1" || gw.lastParams.CustomerEmail != "one@example.com" {
		t.Fatalf("user not forwarded: %+v", gw.lastParams)
	}
	if gw.lastParams.CancelURL != "https://app.example.com?payment=cancelled" {
		t.Fatalf("origin not used: %s", gw.lastParams.CancelURL)
	}
}

func TestHandleCheckout_Errors(t *testing.T) {
	app, _, _ := newBillingFixture(t)
	tests := []struct {
		name string
		key  string
		body string
		code int
	}{
		{"no api key", "", `{"priceId":"price_sub"}`, fiber.StatusUnauthorized},
		{"key without account", "key-orphan", `{"priceId":"price_sub"}`, fiber.StatusForbidden},
		{"missing price", "key-user-1", `{}`, fiber.StatusBadRequest},
		{"bad json", "key-user-1", `{"priceId":`, fiber.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := app.Test(checkoutRequest(tc.key, tc.body), -1)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tc.code {
				t.Fatalf("expected %d got %d", tc.code, resp.StatusCode)
			}
		})
	}
}

func webhookRequest(payload []byte, sig string) *http.Request {
	req := httptest.NewRequest("POST", "/v1/billing/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("Stripe-Signature", sig)
	}
	return req
}

func TestHandleWebhook_CreditsAccount(t *testing.T) {
	app, _, store := newBillingFixture(t)
	payload := []byte(`{"id":"evt_h1","object":"event","type":"checkout.session.completed",` +
		`"data":{"object":{"id":"cs_handler","object":"checkout.session","metadata":{"userId":"user-1"}}}}`)
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testWebhookSecret})

	resp, err := app.Test(webhookRequest(sp.Payload, sp.Header), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), `"received":true`) {
		t.Fatalf("unexpected response %d: %s", resp.StatusCode, body)
	}
	if store.credits["user-1"] != 40 {
		t.Fatalf("expected 40 credits, got %d", store.credits["user-1"])
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/v1/account", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("account without key: expected 401 got %d", resp.StatusCode)
	}

	req := httptest.NewRequest("GET", "/v1/account", nil)
	req.Header.Set("X-API-Key", "key-user-1")
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var acc billing.Account
	if err := json.NewDecoder(resp.Body).Decode(&acc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if acc.Credits != 40 || acc.UserID != "user-1" {
		t.Fatalf("unexpected account %+v", acc)
	}
}

func TestHandleWebhook_Rejects(t *testing.T) {
	app, _, store := newBillingFixture(t)
	payload := []byte(`{"id":"evt_h2","object":"event","type":"checkout.session.completed",` +
		`"data":{"object":{"id":"cs_handler","object":"checkout.session","metadata":{}}}}`)
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testWebhookSecret})

	tests := []struct {
		name string
		req  *http.Request
		code int
	}{
		{"missing signature", webhookRequest(payload, ""), fiber.StatusBadRequest},
		{"wrong signature", webhookRequest(payload, "t=1,v1=abc"), fiber.StatusBadRequest},
		{"missing metadata", webhookRequest(sp.Payload, sp.Header), fiber.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := app.Test(tc.req, -1)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tc.code {
				t.Fatalf("expected %d got %d", tc.code, resp.StatusCode)
			}
		})
	}
	if len(store.credits) != 0 {
		t.Fatalf("rejected events must not credit: %v", store.credits)
	}
}

func TestBillingRoutes_NotConfigured(t *testing.T) {
	app := billingApp(NewBillingService(nil))
	for _, req := range []*http.Request{
		checkoutRequest("key-user-1", `{"priceId":"p"}`),
		webhookRequest([]byte("{}"), "t=1,v1=x"),
		httptest.NewRequest("GET", "/v1/account", nil),
	} {
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503 got %d", req.URL.Path, resp.StatusCode)
		}
	}
}
