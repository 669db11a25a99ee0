// Package notify delivers push notifications to accounts through the
// downstream dispatcher. Delivery is strictly best-effort: a failed push is
// logged and never propagated into the caller's failure path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Pusher sends one message per call. Safe for concurrent use.
type Pusher struct {
	url  string
	http *http.Client
	log  zerolog.Logger
}

// NewPusher constructs a push dispatcher. An empty url disables delivery
// (every Push becomes a logged no-op), which keeps dev setups quiet.
func NewPusher(url string, timeout time.Duration, log zerolog.Logger) *Pusher {
	return &Pusher{
		url:  url,
		http: &http.Client{Timeout: timeout},
		log:  log.With().Str("component", "push").Logger(),
	}
}

// Push sends message to the account. Always returns; never errors.
func (p *Pusher) Push(ctx context.Context, accountID, message string) {
	if p.url == "" {
		p.log.Debug().Str("account", accountID).Msg("push disabled, dropping notification")
		return
	}

	payload, err := json.Marshal(map[string]string{
		"account": accountID,
		"message": message,
	})
	if err != nil {
		p.log.Error().Err(err).Str("account", accountID).Msg("encoding push payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		p.log.Error().Err(err).Str("account", accountID).Msg("building push request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		p.log.Warn().Err(err).Str("account", accountID).Msg("push delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.log.Warn().Int("status", resp.StatusCode).Str("account", accountID).Msg("push delivery rejected")
		return
	}
	p.log.Debug().Str("account", accountID).Msg("push delivered")
}
