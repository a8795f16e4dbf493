// Package webhook signs and delivers event notifications to an external
// collaborator. Delivery is best-effort; the security core never waits on it.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	httpclient "github.com/appleboy/go-httpclient"
)

const signatureHeader = "X-Webhook-Signature"

// Sign returns the hex-encoded HMAC-SHA256 of the raw payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares a presented signature in constant time.
func VerifySignature(secret string, payload []byte, signature string) bool {
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Notifier delivers signed JSON events to a single endpoint.
type Notifier struct {
	url    string
	secret string
	client *http.Client
}

// NewNotifier creates a notifier with a timeout-bounded HTTP client.
// Returns nil when no endpoint is configured; callers treat a nil notifier
// as delivery disabled.
func NewNotifier(url, secret string, timeout time.Duration) (*Notifier, error) {
	if url == "" {
		return nil, nil //nolint:nilnil // nil notifier means webhooks disabled
	}

	client, err := httpclient.NewAuthClient(
		httpclient.AuthModeNone,
		"",
		httpclient.WithTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook client: %w", err)
	}

	return &Notifier{url: url, secret: secret, client: client}, nil
}

// Notify posts one signed event. Errors are returned for logging only;
// callers must not fail the triggering request on delivery errors.
func (n *Notifier) Notify(ctx context.Context, event string, payload map[string]any) error {
	if n == nil {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"event":     event,
		"timestamp": time.Now().Unix(),
		"data":      payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, Sign(n.secret, body))

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook endpoint returned %s", resp.Status)
	}
	return nil
}
