package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	sqsapi "github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/storeops/cart-recovery/internal/abandonment"
	"github.com/storeops/cart-recovery/internal/aws"
	"github.com/storeops/cart-recovery/internal/carts"
	"github.com/storeops/cart-recovery/internal/checkouts"
	"github.com/storeops/cart-recovery/internal/recovery"
	"github.com/storeops/cart-recovery/internal/templates"
)

type fakeBackend struct {
	err error
}

func (f *fakeBackend) CreateCheckout(context.Context, []carts.Item, checkouts.Customer) (checkouts.CreatedOrder, error) {
	if f.err != nil {
		return checkouts.CreatedOrder{}, f.err
	}
	return checkouts.CreatedOrder{OrderRef: "ord-1", PaymentURL: "https://pay.example.com/ord-1"}, nil
}

type fakeShipping struct{}

func (fakeShipping) Rates(_ context.Context, _, postalCode string) ([]checkouts.ShippingRate, error) {
	if postalCode == "00000-000" {
		return nil, fmt.Errorf("carrier unavailable")
	}
	return []checkouts.ShippingRate{
		{Name: "PAC", Price: 19.9, DeliveryTime: "5-8 dias"},
		{Name: "SEDEX", Price: 34.9, DeliveryTime: "1-3 dias"},
	}, nil
}

type fakeSQS struct {
	sends int
}

func (f *fakeSQS) SendMessage(_ context.Context, _ *sqsapi.SendMessageInput, _ ...func(*sqsapi.Options)) (*sqsapi.SendMessageOutput, error) {
	f.sends++
	return &sqsapi.SendMessageOutput{}, nil
}

type env struct {
	router *gin.Engine
	carts  *carts.Store
	logs   *abandonment.MemoryLogRepo
	queue  *fakeSQS
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cartStore := carts.NewStore()
	checkoutStore := checkouts.NewStore(cartStore, &fakeBackend{})
	logs := abandonment.NewMemoryLogRepo()
	composer := recovery.NewComposer(logs, "https://shop.example.com")
	queue := &fakeSQS{}
	publisher := aws.NewPublisher(queue, "https://sqs.us-east-1.amazonaws.com/123/recovery")
	provider := templates.StaticProvider{
		{Name: "reminder", Kind: recovery.KindTransactional, Content: "Oi {name}, finalize em {checkout_link}"},
		{Name: "winback", Kind: recovery.KindMarketing, Content: "Volte com 10% de desconto"},
	}
	dispatcher := recovery.NewDispatcher(composer, provider, logs, publisher, nil)

	cfg := HandlerConfig{
		Carts:      cartStore,
		Checkouts:  checkoutStore,
		Logs:       logs,
		Composer:   composer,
		Dispatcher: dispatcher,
		Templates:  provider,
		Shipping:   fakeShipping{},
	}

	router := gin.New()
	RegisterCartRoutes(router, cfg)
	RegisterCheckoutRoutes(router, cfg)
	RegisterRecoveryRoutes(router, cfg)

	return &env{router: router, carts: cartStore, logs: logs, queue: queue}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %s: %v", w.Body.String(), err)
	}
	return out
}

func (e *env) createCart(t *testing.T) carts.Cart {
	t.Helper()
	w := e.do(t, http.MethodPost, "/carts", gin.H{
		"session_id": "sess-1",
		"source":     "instagram",
		"items": []gin.H{
			{"product_id": "p-1", "name": "Ceramic Mug", "quantity": 2, "unit_price": 50.0},
			{"product_id": "p-2", "name": "Coffee Beans", "quantity": 1, "unit_price": 20.0},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create cart: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode[carts.Cart](t, w)
}

func (e *env) startCheckout(t *testing.T, cartID string) checkouts.Checkout {
	t.Helper()
	w := e.do(t, http.MethodPost, "/checkouts", gin.H{
		"cart_id":  cartID,
		"customer": gin.H{"name": "Maria Silva", "phone": "+5511999990000"},
		"consent":  gin.H{"transactional": true, "marketing": false},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("start checkout: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode[checkouts.Checkout](t, w)
}

func TestCartRoutes(t *testing.T) {
	e := newEnv(t)

	cart := e.createCart(t)
	if cart.Status != carts.StatusOpen || len(cart.Items) != 2 {
		t.Fatalf("created cart mismatch: %+v", cart)
	}
	if cart.Attribution == nil || cart.Attribution.Source != "instagram" {
		t.Fatalf("attribution lost: %+v", cart.Attribution)
	}

	if w := e.do(t, http.MethodGet, "/carts/"+cart.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("get cart: expected 200, got %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/carts/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("get missing cart: expected 404, got %d", w.Code)
	}

	if w := e.do(t, http.MethodPost, "/carts/"+cart.ID+"/touch", nil); w.Code != http.StatusNoContent {
		t.Fatalf("touch: expected 204, got %d", w.Code)
	}

	w := e.do(t, http.MethodPut, "/carts/"+cart.ID+"/items/"+cart.Items[0].ID, gin.H{"quantity": 3})
	if w.Code != http.StatusOK {
		t.Fatalf("set quantity: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	updated := decode[carts.Cart](t, w)
	if updated.Items[0].Quantity != 3 || updated.Status != carts.StatusUpdated {
		t.Fatalf("quantity update mismatch: %+v", updated)
	}

	// Quantity zero removes the line.
	w = e.do(t, http.MethodPut, "/carts/"+cart.ID+"/items/"+cart.Items[1].ID, gin.H{"quantity": 0})
	if w.Code != http.StatusOK {
		t.Fatalf("remove line: expected 200, got %d", w.Code)
	}
	if updated = decode[carts.Cart](t, w); len(updated.Items) != 1 {
		t.Fatalf("expected line removed, got %+v", updated.Items)
	}

	if w := e.do(t, http.MethodPut, "/carts/"+cart.ID+"/items/"+cart.Items[0].ID, gin.H{}); w.Code != http.StatusBadRequest {
		t.Fatalf("absent quantity: expected 400, got %d", w.Code)
	}
}

func TestCreateCart_Validation(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/carts", gin.H{"session_id": "sess-1", "items": []gin.H{}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty items: expected 400, got %d", w.Code)
	}
}

func TestCheckoutRoutes(t *testing.T) {
	e := newEnv(t)
	cart := e.createCart(t)
	checkout := e.startCheckout(t, cart.ID)

	if checkout.Total != 120.0 || checkout.Step != checkouts.StepPersonalData {
		t.Fatalf("started checkout mismatch: %+v", checkout)
	}

	// The source cart converted with the checkout.
	got, _ := e.carts.Get(cart.ID)
	if got.Status != carts.StatusConverted {
		t.Fatalf("expected converted cart, got %s", got.Status)
	}

	// Starting again from the converted cart conflicts.
	w := e.do(t, http.MethodPost, "/checkouts", gin.H{
		"cart_id":  cart.ID,
		"customer": gin.H{},
		"consent":  gin.H{"transactional": true, "marketing": false},
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("restart from converted cart: expected 409, got %d", w.Code)
	}

	if w := e.do(t, http.MethodPost, "/checkouts/"+checkout.ID+"/advance", gin.H{"step": "shipping", "customer": gin.H{"email": "maria@example.com"}}); w.Code != http.StatusNoContent {
		t.Fatalf("advance: expected 204, got %d: %s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodPost, "/checkouts/"+checkout.ID+"/advance", gin.H{"step": "personal_data"}); w.Code != http.StatusConflict {
		t.Fatalf("backwards step: expected 409, got %d", w.Code)
	}

	w = e.do(t, http.MethodPost, "/checkouts/"+checkout.ID+"/offers", gin.H{"id": "bump-1", "name": "Gift Wrap", "price": 9.9})
	if w.Code != http.StatusOK {
		t.Fatalf("add offer: expected 200, got %d", w.Code)
	}
	if withOffer := decode[checkouts.Checkout](t, w); withOffer.Total != 129.9 {
		t.Fatalf("expected total 129.90, got %.2f", withOffer.Total)
	}

	if w := e.do(t, http.MethodPost, "/checkouts/"+checkout.ID+"/interact", gin.H{}); w.Code != http.StatusNoContent {
		t.Fatalf("interact: expected 204, got %d", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/checkouts/"+checkout.ID+"/payment-failed", nil); w.Code != http.StatusNoContent {
		t.Fatalf("payment failed: expected 204, got %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/checkouts/"+checkout.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("get checkout: expected 200, got %d", w.Code)
	} else if failed := decode[checkouts.Checkout](t, w); failed.Status != checkouts.StatusPaymentFailed {
		t.Fatalf("expected payment_failed, got %s", failed.Status)
	}
	if w := e.do(t, http.MethodPost, "/checkouts/"+checkout.ID+"/complete", nil); w.Code != http.StatusNoContent {
		t.Fatalf("complete: expected 204, got %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/checkouts/"+checkout.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("get checkout: expected 200, got %d", w.Code)
	} else if final := decode[checkouts.Checkout](t, w); final.Status != checkouts.StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
}

func TestStartCheckout_ConsentRequired(t *testing.T) {
	e := newEnv(t)
	cart := e.createCart(t)

	// Absent flags are rejected, not defaulted.
	w := e.do(t, http.MethodPost, "/checkouts", gin.H{
		"cart_id":  cart.ID,
		"customer": gin.H{},
		"consent":  gin.H{"transactional": true},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("absent marketing flag: expected 400, got %d", w.Code)
	}

	w = e.do(t, http.MethodPost, "/checkouts", gin.H{
		"cart_id":  cart.ID,
		"customer": gin.H{},
		"consent":  gin.H{"transactional": false, "marketing": true},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("declined transactional consent: expected 400, got %d", w.Code)
	}
}

func TestShippingRates(t *testing.T) {
	e := newEnv(t)
	cart := e.createCart(t)
	checkout := e.startCheckout(t, cart.ID)

	w := e.do(t, http.MethodGet, "/checkouts/"+checkout.ID+"/shipping-rates?postal_code=01310-100", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rates: expected 200, got %d", w.Code)
	}
	resp := decode[map[string][]checkouts.ShippingRate](t, w)
	if len(resp["rates"]) != 2 {
		t.Fatalf("expected 2 rates, got %+v", resp)
	}

	if w := e.do(t, http.MethodGet, "/checkouts/"+checkout.ID+"/shipping-rates", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing postal code: expected 400, got %d", w.Code)
	}

	// Carrier failure degrades to an empty list, never an error.
	w = e.do(t, http.MethodGet, "/checkouts/"+checkout.ID+"/shipping-rates?postal_code=00000-000", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("degraded rates: expected 200, got %d", w.Code)
	}
	if resp = decode[map[string][]checkouts.ShippingRate](t, w); len(resp["rates"]) != 0 {
		t.Fatalf("expected empty rate list, got %+v", resp)
	}
}

func seedLog(t *testing.T, e *env, log abandonment.Log) {
	t.Helper()
	if _, err := e.logs.CreateIfAbsent(context.Background(), log); err != nil {
		t.Fatalf("seed log: %v", err)
	}
}

func TestRecoveryRoutes(t *testing.T) {
	e := newEnv(t)
	seedLog(t, e, abandonment.Log{
		ID:              "log-1",
		ReferenceID:     "chk-1",
		Type:            abandonment.TypeCheckoutAbandoned,
		CustomerName:    "Maria Silva",
		CustomerContact: "+5511999990000",
		Consent:         &checkouts.Consent{Transactional: true, Marketing: false},
		Value:           120,
	})
	seedLog(t, e, abandonment.Log{
		ID:          "log-2",
		ReferenceID: "cart-2",
		Type:        abandonment.TypeCartAbandoned,
		Value:       40,
	})

	w := e.do(t, http.MethodGet, "/recovery/logs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	list := decode[map[string][]abandonment.Log](t, w)
	if len(list["logs"]) != 2 {
		t.Fatalf("expected 2 logs, got %+v", list)
	}

	w = e.do(t, http.MethodGet, "/recovery/logs?type=CHECKOUT_ABANDONED&min_value=100", nil)
	list = decode[map[string][]abandonment.Log](t, w)
	if len(list["logs"]) != 1 || list["logs"][0].ID != "log-1" {
		t.Fatalf("filtered list mismatch: %+v", list)
	}

	if w := e.do(t, http.MethodGet, "/recovery/logs?min_value=abc", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad min_value: expected 400, got %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/recovery/logs/missing", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing log: expected 404, got %d", w.Code)
	}

	w = e.do(t, http.MethodPatch, "/recovery/logs/log-1", gin.H{"status": "recovered", "notes": "pedido refeito por telefone"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	patched := decode[abandonment.Log](t, w)
	if patched.Recovery != abandonment.RecoveryRecovered || patched.Notes == "" {
		t.Fatalf("patch not applied: %+v", patched)
	}

	if w := e.do(t, http.MethodPatch, "/recovery/logs/log-1", gin.H{}); w.Code != http.StatusBadRequest {
		t.Fatalf("empty patch: expected 400, got %d", w.Code)
	}
	if w := e.do(t, http.MethodPatch, "/recovery/logs/log-1", gin.H{"status": "archived"}); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown status: expected 400, got %d", w.Code)
	}
}

func TestRecoveryTemplatesAndDispatch(t *testing.T) {
	e := newEnv(t)
	seedLog(t, e, abandonment.Log{
		ID:              "log-1",
		ReferenceID:     "chk-1",
		Type:            abandonment.TypeCheckoutAbandoned,
		CustomerName:    "Maria Silva",
		CustomerContact: "+5511999990000",
		Consent:         &checkouts.Consent{Transactional: true, Marketing: false},
		Value:           120,
	})

	// Marketing was declined: only the transactional reminder shows up.
	w := e.do(t, http.MethodGet, "/recovery/logs/log-1/templates", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("templates: expected 200, got %d", w.Code)
	}
	resp := decode[map[string][]recovery.MessageTemplate](t, w)
	if len(resp["templates"]) != 1 || resp["templates"][0].Name != "reminder" {
		t.Fatalf("expected only the reminder template, got %+v", resp)
	}

	w = e.do(t, http.MethodPost, "/recovery/logs/log-1/dispatch", gin.H{"template": "reminder"})
	if w.Code != http.StatusOK {
		t.Fatalf("dispatch: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	msg := decode[recovery.OutboundMessage](t, w)
	if msg.Contact != "+5511999990000" || msg.Body == "" {
		t.Fatalf("outbound message mismatch: %+v", msg)
	}
	if e.queue.sends != 1 {
		t.Fatalf("expected one enqueued message, got %d", e.queue.sends)
	}

	log, _ := e.logs.Get(context.Background(), "log-1")
	if log.Recovery != abandonment.RecoveryContacted {
		t.Fatalf("expected contacted after dispatch, got %s", log.Recovery)
	}

	// Withheld promotional template is a dispatch failure.
	if w := e.do(t, http.MethodPost, "/recovery/logs/log-1/dispatch", gin.H{"template": "winback"}); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("withheld template: expected 422, got %d", w.Code)
	}
}
