package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quillon/ruleflow/internal/action"
)

// CallWebhook handles "call_webhook": posts a JSON payload to params.url.
// Network errors and 5xx responses are execution faults (retryable); 4xx
// responses are business failures.
type CallWebhook struct {
	client *http.Client
}

func NewCallWebhook() *CallWebhook {
	return &CallWebhook{client: &http.Client{Timeout: 15 * time.Second}}
}

func (*CallWebhook) Type() string { return "call_webhook" }

func (*CallWebhook) Validate(params map[string]interface{}) error {
	if s, _ := params["url"].(string); s == "" {
		return fmt.Errorf("call_webhook: url is required")
	}
	return nil
}

func (w *CallWebhook) Execute(ctx context.Context, ec *action.ExecContext, params map[string]interface{}) (*action.Result, error) {
	url, _ := params["url"].(string)
	method, _ := params["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	payload, _ := params["payload"].(map[string]interface{})
	if payload == nil {
		payload = map[string]interface{}{
			"entity_type": ec.EntityType,
			"entity_id":   ec.EntityID,
			"event":       ec.EventKind,
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &action.Result{Success: false, Message: fmt.Sprintf("payload not serializable: %s", err)}, nil
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return &action.Result{Success: false, Message: fmt.Sprintf("invalid request: %s", err)}, nil
	}
	req.Header.Set("Content-Type", "application/json")
	if headers, ok := params["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call_webhook %s: %w", url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("call_webhook %s: upstream returned %d", url, resp.StatusCode)
	case resp.StatusCode >= 400:
		return &action.Result{Success: false, Message: fmt.Sprintf("%s %s returned %d", method, url, resp.StatusCode)}, nil
	default:
		return &action.Result{Success: true, Message: fmt.Sprintf("%s %s returned %d", method, url, resp.StatusCode)}, nil
	}
}
