package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/wonny/aegis/consult/pkg/logger"
)

// httpRequest is the body posted to a remote evaluator
type httpRequest struct {
	Payload string `json:"payload"`
}

// httpResponse is the JSON answer of a remote evaluator.
// A non-JSON body is used as the raw output as is.
type httpResponse struct {
	Output string `json:"output"`
}

// HTTP evaluates payloads by POSTing them to a remote service
type HTTP struct {
	client *resty.Client
	url    string
	logger *logger.Logger
}

// NewHTTP creates an evaluator for url; timeout 0 leaves the deadline to ctx
func NewHTTP(url string, timeout time.Duration, log *logger.Logger) *HTTP {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0) // 재시도 없음
	client.SetHeader("Accept", "application/json, text/plain")

	return &HTTP{
		client: client,
		url:    url,
		logger: log.WithField("evaluator", "http"),
	}
}

// Evaluate implements contracts.Evaluator
func (h *HTTP) Evaluate(ctx context.Context, payload string) (string, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(httpRequest{Payload: payload}).
		Post(h.url)
	if err != nil {
		return "", fmt.Errorf("evaluator request: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("evaluator returned %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}

	body := resp.Body()
	var out httpResponse
	if err := json.Unmarshal(body, &out); err == nil && out.Output != "" {
		return out.Output, nil
	}

	h.logger.WithField("bytes", len(body)).Debug("Evaluator answered with a raw body")
	return string(body), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
