package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/craftisan/marketplace/internal/auth"
	"github.com/craftisan/marketplace/internal/cart"
)

type fakeCreator struct {
	calls     int
	sessionID string
	err       error
}

func (f *fakeCreator) Create(_ context.Context, _ int64, _ *cart.Cart) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.sessionID, nil
}

func authedRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/create-checkout-session", strings.NewReader(body))
	token, err := auth.NewToken("secret", 42, auth.UserTypeCustomer, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHandler_HandleCreateSession(t *testing.T) {
	validBody := `{"cart_items": [{"product_id": 1, "quantity": 2, "unit_price": "10.00"}]}`

	t.Run("returns the session id", func(t *testing.T) {
		creator := &fakeCreator{sessionID: "cs_test_ok"}
		handler := NewHandler(creator, nil, testLogger())

		rec := httptest.NewRecorder()
		auth.RequireUser("secret", handler.HandleCreateSession)(rec, authedRequest(t, validBody))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp["id"] != "cs_test_ok" {
			t.Errorf("expected session id cs_test_ok, got %q", resp["id"])
		}
	})

	t.Run("rejects unauthenticated requests", func(t *testing.T) {
		creator := &fakeCreator{sessionID: "cs_test_ok"}
		handler := NewHandler(creator, nil, testLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/create-checkout-session", strings.NewReader(validBody))
		rec := httptest.NewRecorder()
		auth.RequireUser("secret", handler.HandleCreateSession)(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rec.Code)
		}
		if creator.calls != 0 {
			t.Errorf("expected no provider call, got %d", creator.calls)
		}
	})

	t.Run("rejects an invalid cart line before calling the provider", func(t *testing.T) {
		creator := &fakeCreator{sessionID: "cs_test_ok"}
		handler := NewHandler(creator, nil, testLogger())

		body := `{"cart_items": [{"product_id": 1, "quantity": 0, "unit_price": "10.00"}]}`
		rec := httptest.NewRecorder()
		auth.RequireUser("secret", handler.HandleCreateSession)(rec, authedRequest(t, body))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
		if creator.calls != 0 {
			t.Errorf("expected no provider call, got %d", creator.calls)
		}
	})

	t.Run("maps an empty cart to a client error", func(t *testing.T) {
		creator := &fakeCreator{err: ErrEmptyCart}
		handler := NewHandler(creator, nil, testLogger())

		rec := httptest.NewRecorder()
		auth.RequireUser("secret", handler.HandleCreateSession)(rec, authedRequest(t, `{"cart_items": []}`))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("maps provider outages to a retryable error", func(t *testing.T) {
		creator := &fakeCreator{err: ErrProviderUnavailable}
		handler := NewHandler(creator, nil, testLogger())

		rec := httptest.NewRecorder()
		auth.RequireUser("secret", handler.HandleCreateSession)(rec, authedRequest(t, validBody))

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleWebhook(t *testing.T) {
	t.Run("acknowledges a valid delivery", func(t *testing.T) {
		store := &fakeOrderStore{}
		processor := newTestProcessor(store, &fakeNotifier{}, nil)
		handler := NewHandler(&fakeCreator{}, processor, testLogger())

		payload := completedSessionPayload(t, "cs_test_http")
		req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(string(payload)))
		req.Header.Set("Stripe-Signature", signHeader(t, payload))
		rec := httptest.NewRecorder()
		handler.HandleWebhook(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp map[string]bool
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if !resp["received"] {
			t.Error("expected received: true")
		}
		if len(store.orders) != 1 {
			t.Errorf("expected 1 order, got %d", len(store.orders))
		}
	})

	t.Run("rejects a delivery with a bad signature", func(t *testing.T) {
		store := &fakeOrderStore{}
		processor := newTestProcessor(store, &fakeNotifier{}, nil)
		handler := NewHandler(&fakeCreator{}, processor, testLogger())

		payload := completedSessionPayload(t, "cs_test_badsig")
		req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(string(payload)))
		req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
		rec := httptest.NewRecorder()
		handler.HandleWebhook(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
		if len(store.orders) != 0 {
			t.Errorf("expected no orders, got %d", len(store.orders))
		}
	})
}
