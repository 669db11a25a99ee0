// Package monitoring implements the JSON-RPC client for the external
// monitoring system. The query is a two-step call: resolve host-group names to
// IDs, then fetch host status per group. Either step can fail independently;
// callers treat a failure as "no groups down this pass" rather than crashing.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ErrUnavailable marks a transport or protocol failure talking to the
// monitoring API.
var ErrUnavailable = errors.New("monitoring API unavailable")

// Client queries the monitoring JSON-RPC endpoint. Safe for concurrent use.
type Client struct {
	url   string
	token string
	http  *http.Client
}

// NewClient constructs a monitoring client.
func NewClient(url, token string, timeout time.Duration) *Client {
	return &Client{
		url:   url,
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	Auth    string `json:"auth"`
	ID      int    `json:"id"`
}

// GroupIDs resolves host-group names to their numeric IDs. Names with no
// matching group are silently absent from the result.
func (c *Client) GroupIDs(ctx context.Context, names []string) (map[int]string, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  "hostgroup.get",
		Params: map[string]any{
			"output": []string{"groupid", "name"},
			"filter": map[string]any{"name": names},
		},
		Auth: c.token,
		ID:   2,
	}
	var result []struct {
		GroupID string `json:"groupid"`
		Name    string `json:"name"`
	}
	if err := c.call(ctx, req, &result); err != nil {
		return nil, err
	}
	out := make(map[int]string, len(result))
	for _, g := range result {
		id, err := strconv.Atoi(g.GroupID)
		if err != nil {
			continue
		}
		out[id] = g.Name
	}
	return out, nil
}

// DownGroups returns the names of host groups, among the given names, that
// currently contain at least one host with a non-zero (down) status.
func (c *Client) DownGroups(ctx context.Context, names []string) (map[string]bool, error) {
	if len(names) == 0 {
		return map[string]bool{}, nil
	}
	groups, err := c.GroupIDs(ctx, names)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return map[string]bool{}, nil
	}
	ids := make([]int, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  "host.get",
		Params: map[string]any{
			"output":           []string{"name", "status"},
			"selectHostGroups": "extend",
			"groupids":         ids,
		},
		Auth: c.token,
		ID:   1,
	}
	var result []struct {
		Name       string `json:"name"`
		Status     string `json:"status"`
		HostGroups []struct {
			Name string `json:"name"`
		} `json:"hostgroups"`
	}
	if err := c.call(ctx, req, &result); err != nil {
		return nil, err
	}

	down := map[string]bool{}
	for _, host := range result {
		st, err := strconv.Atoi(host.Status)
		if err != nil || st == 0 {
			continue
		}
		for _, g := range host.HostGroups {
			down[g.Name] = true
		}
	}
	return down, nil
}

// call performs one JSON-RPC round trip and decodes the result field.
func (c *Client) call(ctx context.Context, req rpcRequest, result any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: encoding request: %v", ErrUnavailable, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    string `json:"data"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: decoding envelope: %v", ErrUnavailable, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%w: rpc error %d: %s %s", ErrUnavailable,
			envelope.Error.Code, envelope.Error.Message, envelope.Error.Data)
	}
	if envelope.Result == nil {
		return fmt.Errorf("%w: response has no result", ErrUnavailable)
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("%w: decoding result: %v", ErrUnavailable, err)
	}
	return nil
}
