package rewards

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTP posts outcomes to an external reward service. Wrapped in Retrying so
// transient failures do not lose the dispatch.
type HTTP struct {
	url    string
	client *http.Client
}

func NewHTTP(url string) *HTTP {
	return &HTTP{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *HTTP) Distribute(ctx context.Context, sessionID string, outcome Outcome) error {
	body, err := json.Marshal(struct {
		SessionID string `json:"session_id"`
		Outcome
	}{SessionID: sessionID, Outcome: outcome})
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("post outcome: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("reward service returned %s", resp.Status)
	}
	return nil
}
