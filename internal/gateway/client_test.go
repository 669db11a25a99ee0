package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vt54/isp-mobile-backend/internal/config"
	"github.com/vt54/isp-mobile-backend/internal/domain"
)

// newTestClient spins up a stub gateway and returns a client pointed at it.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(config.GatewayConfig{
		BaseURL:   srv.URL,
		User:      "api-user",
		Password:  "api-pass",
		ReturnURL: "https://app.example.com/done",
		FailURL:   "https://app.example.com/fail",
		Timeout:   2 * time.Second,
	})
	return c, srv
}

func mustAccount(t *testing.T, id string) domain.AccountRef {
	t.Helper()
	ref, err := domain.ParseAccount(id)
	if err != nil {
		t.Fatalf("ParseAccount(%q): %v", id, err)
	}
	return ref
}

func TestRegisterOrder_SendsRequiredParams(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(`{"orderId":"o-1","formUrl":"https://gw/form"}`))
	})

	reg, err := c.RegisterOrder(context.Background(), mustAccount(t, "11310"), 15000, false)
	if err != nil {
		t.Fatalf("RegisterOrder: %v", err)
	}
	if reg.OrderID != "o-1" || reg.FormURL != "https://gw/form" {
		t.Fatalf("unexpected registration: %+v", reg)
	}
	if gotPath != "/register.do" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotQuery["userName"] != "api-user" || gotQuery["password"] != "api-pass" {
		t.Fatalf("credentials missing: %v", gotQuery)
	}
	if gotQuery["amount"] != "15000" || gotQuery["pageView"] != "MOBILE" {
		t.Fatalf("order params unexpected: %v", gotQuery)
	}
	if gotQuery["orderNumber"] == "" {
		t.Fatalf("orderNumber must be generated")
	}
	if _, ok := gotQuery["clientId"]; ok {
		t.Fatalf("clientId must be absent for non-autopay orders")
	}
}

func TestRegisterOrder_AutopaySendsClientID(t *testing.T) {
	var clientID string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		clientID = r.URL.Query().Get("clientId")
		w.Write([]byte(`{"orderId":"o-2","formUrl":"https://gw/form"}`))
	})

	if _, err := c.RegisterOrder(context.Background(), mustAccount(t, "0001"), 100, true); err != nil {
		t.Fatalf("RegisterOrder: %v", err)
	}
	if clientID != "0001" {
		t.Fatalf("clientId = %q; want account ID", clientID)
	}
}

func TestRegisterOrder_RejectionAndTransportErrors(t *testing.T) {
	// Understood-but-refused: body without orderId
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errorCode":"5","errorMessage":"access denied"}`))
	})
	_, err := c.RegisterOrder(context.Background(), mustAccount(t, "11310"), 100, false)
	if !errors.Is(err, ErrGatewayRejected) {
		t.Fatalf("expected ErrGatewayRejected, got %v", err)
	}

	// Non-2xx: transport failure
	c2, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err = c2.RegisterOrder(context.Background(), mustAccount(t, "11310"), 100, false)
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}

	// Zero account ref is rejected locally, never hits the wire
	_, err = c.RegisterOrder(context.Background(), domain.AccountRef{}, 100, false)
	if !errors.Is(err, domain.ErrInvalidAccount) {
		t.Fatalf("expected ErrInvalidAccount, got %v", err)
	}
}

func TestQueryStatus_ParsesAuthorizedPayload(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/getOrderStatus.do" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("orderId") != "o-3" {
			t.Errorf("orderId = %q", r.URL.Query().Get("orderId"))
		}
		w.Write([]byte(`{"OrderStatus":2,"Amount":15000,"bindingId":"B1","Ip":"203.0.113.9"}`))
	})

	st, err := c.QueryStatus(context.Background(), "o-3")
	if err != nil {
		t.Fatalf("QueryStatus: %v", err)
	}
	if st.OrderStatus == nil || *st.OrderStatus != domain.GatewayStatusAuthorized {
		t.Fatalf("OrderStatus = %v", st.OrderStatus)
	}
	if st.Amount != 15000 || st.BindingID != "B1" || st.IP != "203.0.113.9" {
		t.Fatalf("payload fields unexpected: %+v", st)
	}
}

func TestQueryStatus_MalformedBodyKeepsPolling(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	})
	st, err := c.QueryStatus(context.Background(), "o-4")
	if err != nil {
		t.Fatalf("malformed body must not be an error: %v", err)
	}
	if st.OrderStatus != nil {
		t.Fatalf("malformed body must carry no status, got %v", *st.OrderStatus)
	}
}

func TestQueryStatus_AbsentStatusFieldIsPending(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ErrorCode":"0"}`))
	})
	st, err := c.QueryStatus(context.Background(), "o-5")
	if err != nil {
		t.Fatalf("QueryStatus: %v", err)
	}
	if st.OrderStatus != nil {
		t.Fatalf("absent OrderStatus must stay nil")
	}
}

func TestChargeBinding_SendsBindingParams(t *testing.T) {
	var q map[string]string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q = map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(`{}`))
	})

	if err := c.ChargeBinding(context.Background(), "o-6", "B1", "203.0.113.9"); err != nil {
		t.Fatalf("ChargeBinding: %v", err)
	}
	if q["mdOrder"] != "o-6" || q["bindingId"] != "B1" || q["ip"] != "203.0.113.9" || q["tii"] != "U" {
		t.Fatalf("binding params unexpected: %v", q)
	}

	if err := c.ChargeBinding(context.Background(), "", "B1", ""); err == nil {
		t.Fatalf("empty orderID must fail")
	}
}

func TestBindingsAndUnbind(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/getBindings.do":
			if r.URL.Query().Get("clientId") != "0001" {
				t.Errorf("clientId = %q", r.URL.Query().Get("clientId"))
			}
			w.Write([]byte(`{"bindings":[{"bindingId":"B1","maskedPan":"4111**1111","expiryDate":"202712"}]}`))
		case "/unBindCard.do":
			if r.URL.Query().Get("bindingId") != "B1" {
				t.Errorf("bindingId = %q", r.URL.Query().Get("bindingId"))
			}
			w.Write([]byte(`{"errorCode":"0"}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})

	got, err := c.Bindings(context.Background(), mustAccount(t, "0001"))
	if err != nil {
		t.Fatalf("Bindings: %v", err)
	}
	if len(got) != 1 || got[0].BindingID != "B1" || got[0].MaskedPan != "4111**1111" {
		t.Fatalf("bindings unexpected: %+v", got)
	}

	if err := c.UnbindCard(context.Background(), "B1"); err != nil {
		t.Fatalf("UnbindCard: %v", err)
	}
	if err := c.UnbindCard(context.Background(), ""); err == nil {
		t.Fatalf("empty bindingID must fail")
	}
}
