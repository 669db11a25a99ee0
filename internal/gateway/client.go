// Package gateway implements the HTTP client for the acquiring gateway's REST
// interface. The client is deliberately thin: one outbound call per method, no
// retry, no interpretation of business-status codes. Transport failures are
// wrapped in ErrGatewayUnavailable so callers can own the retry policy.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/vt54/isp-mobile-backend/internal/config"
	"github.com/vt54/isp-mobile-backend/internal/domain"
)

// ErrGatewayUnavailable marks a transport-level failure talking to the
// acquiring gateway: connection errors, timeouts, non-2xx responses, or an
// unreadable body. Business declines are not errors.
var ErrGatewayUnavailable = errors.New("acquiring gateway unavailable")

// ErrGatewayRejected marks a request the gateway understood and refused at
// registration time (bad credentials, malformed order).
var ErrGatewayRejected = errors.New("acquiring gateway rejected request")

// RawStatus is the uninterpreted payload of a status query. OrderStatus is nil
// when the field was absent or unparsable; classification happens in the
// settlement orchestrator.
type RawStatus struct {
	OrderStatus  *int   `json:"OrderStatus"`
	Amount       int64  `json:"Amount"`
	BindingID    string `json:"bindingId"`
	IP           string `json:"Ip"`
	ErrorCode    string `json:"ErrorCode"`
	ErrorMessage string `json:"ErrorMessage"`
}

// Binding is one stored-card record returned by the bindings listing.
type Binding struct {
	BindingID  string `json:"bindingId"`
	MaskedPan  string `json:"maskedPan"`
	ExpiryDate string `json:"expiryDate"`
}

// RegisteredOrder is the result of a successful order registration.
type RegisteredOrder struct {
	OrderID string `json:"orderId"`
	FormURL string `json:"formUrl"`
}

// Client issues requests against the acquiring gateway. It is safe for
// concurrent use.
type Client struct {
	cfg  config.GatewayConfig
	http *http.Client
}

// NewClient constructs a gateway client from configuration. The HTTP client
// carries the configured per-call timeout.
func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// RegisterOrder registers a new order for the account and returns the gateway
// order ID together with the hosted card-entry form URL. amount is in minor
// currency units. When autopay is true the account ID is sent as the gateway
// clientId so a binding is captured on authorization.
func (c *Client) RegisterOrder(ctx context.Context, account domain.AccountRef, amount int64, autopay bool) (RegisteredOrder, error) {
	if account.IsZero() {
		return RegisteredOrder{}, domain.ErrInvalidAccount
	}
	params := c.auth()
	params.Set("orderNumber", uuid.NewString())
	params.Set("amount", strconv.FormatInt(amount, 10))
	params.Set("returnUrl", c.cfg.ReturnURL)
	params.Set("failUrl", c.cfg.FailURL)
	params.Set("pageView", "MOBILE")
	if autopay {
		params.Set("clientId", account.ID())
	}

	var reg RegisteredOrder
	var gwErr struct {
		ErrorCode    string `json:"errorCode"`
		ErrorMessage string `json:"errorMessage"`
	}
	body, err := c.post(ctx, "/register.do", params)
	if err != nil {
		return RegisteredOrder{}, err
	}
	if err := json.Unmarshal(body, &reg); err != nil {
		return RegisteredOrder{}, fmt.Errorf("%w: decoding register response: %v", ErrGatewayUnavailable, err)
	}
	if reg.OrderID == "" {
		_ = json.Unmarshal(body, &gwErr)
		return RegisteredOrder{}, fmt.Errorf("%w: code=%s %s", ErrGatewayRejected, gwErr.ErrorCode, gwErr.ErrorMessage)
	}
	return reg, nil
}

// ChargeBinding charges a previously stored card binding for the given order.
// sourceIP is the client IP recorded when the binding was authorized.
func (c *Client) ChargeBinding(ctx context.Context, orderID, bindingID, sourceIP string) error {
	if orderID == "" || bindingID == "" {
		return errors.New("gateway: orderID and bindingID must not be empty")
	}
	params := c.auth()
	params.Set("mdOrder", orderID)
	params.Set("bindingId", bindingID)
	params.Set("ip", sourceIP)
	params.Set("tii", "U")
	_, err := c.post(ctx, "/paymentOrderBinding.do", params)
	return err
}

// QueryStatus fetches the current order status. The payload is returned
// uninterpreted; an absent or unparsable OrderStatus field yields a nil
// OrderStatus, which callers treat as "still pending".
func (c *Client) QueryStatus(ctx context.Context, orderID string) (RawStatus, error) {
	if orderID == "" {
		return RawStatus{}, errors.New("gateway: orderID must not be empty")
	}
	params := c.auth()
	params.Set("orderId", orderID)
	body, err := c.post(ctx, "/getOrderStatus.do", params)
	if err != nil {
		return RawStatus{}, err
	}
	var st RawStatus
	// A malformed body is not a transport failure: report it as a payload with
	// no status so the poll loop keeps going.
	if err := json.Unmarshal(body, &st); err != nil {
		return RawStatus{}, nil
	}
	return st, nil
}

// Bindings lists the stored-card bindings registered for the account.
func (c *Client) Bindings(ctx context.Context, account domain.AccountRef) ([]Binding, error) {
	if account.IsZero() {
		return nil, domain.ErrInvalidAccount
	}
	params := c.auth()
	params.Set("clientId", account.ID())
	body, err := c.post(ctx, "/getBindings.do", params)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Bindings []Binding `json:"bindings"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding bindings response: %v", ErrGatewayUnavailable, err)
	}
	return resp.Bindings, nil
}

// UnbindCard removes one stored-card binding at the gateway.
func (c *Client) UnbindCard(ctx context.Context, bindingID string) error {
	if bindingID == "" {
		return errors.New("gateway: bindingID must not be empty")
	}
	params := c.auth()
	params.Set("bindingId", bindingID)
	_, err := c.post(ctx, "/unBindCard.do", params)
	return err
}

// auth returns the credential parameters every gateway call carries.
func (c *Client) auth() url.Values {
	v := url.Values{}
	v.Set("userName", c.cfg.User)
	v.Set("password", c.cfg.Password)
	return v
}

// post issues one POST with params in the query string, mirroring the
// gateway's REST convention, and returns the raw body.
func (c *Client) post(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.cfg.BaseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrGatewayUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: http %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	return body, nil
}
