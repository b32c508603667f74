package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sandevgo/rumormill/pkg/retry"
)

type baseProvider struct {
	client  *http.Client
	retrier *retry.Retrier
	baseURL string
	apiKey  string
	model   string
}

func newBaseProvider(baseURL, apiKey, model string) baseProvider {
	retryCfg := retry.NewDefaultConfig()
	retryCfg.MaxRetries = 2
	retryCfg.InitialDelay = 500 * time.Millisecond

	return baseProvider{
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		retrier: retry.NewRetrier(retryCfg),
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
	}
}

// doRequest posts JSON and retries transient failures: transport errors,
// 429 and 5xx. Anything else comes back to the caller as-is.
func (b *baseProvider) doRequest(ctx context.Context, method, path string, body any, headers map[string]string) (*http.Response, error) {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal: %w", err)
		}
	}

	var resp *http.Response
	op := func() error {
		var bodyReader io.Reader
		if data != nil {
			bodyReader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("Content-Type", "application/json")

		r, err := b.client.Do(req)
		if err != nil {
			return fmt.Errorf("request: %w", err)
		}
		if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= http.StatusInternalServerError {
			payload, _ := io.ReadAll(io.LimitReader(r.Body, 4<<10))
			r.Body.Close()
			return fmt.Errorf("http %d: %s", r.StatusCode, string(payload))
		}

		resp = r
		return nil
	}

	if err := b.retrier.Do(ctx, op); err != nil {
		return nil, err
	}
	return resp, nil
}
