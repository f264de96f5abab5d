package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Inscribe-Network/archive_layer/pkg/logger"
)

// HTTPJudge invokes a scoring oracle over HTTP. Calls are rate limited and
// bounded by a hard per-call timeout; the oracle is the dominant latency
// source in the system and can take minutes to answer.
type HTTPJudge struct {
	client   *http.Client
	endpoint *url.URL
	apiKey   string
	timeout  time.Duration
	limiter  *rate.Limiter
	log      *logger.Logger
}

// NewHTTPJudge constructs a judge for the given endpoint. callTimeout bounds
// a single oracle invocation; ratePerMinute throttles outbound calls
// (0 disables throttling).
func NewHTTPJudge(client *http.Client, endpoint, apiKey string, callTimeout time.Duration, ratePerMinute int, log *logger.Logger) (*HTTPJudge, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("judge endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse judge endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{}
	}
	if callTimeout <= 0 {
		callTimeout = 2 * time.Minute
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if ratePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60.0), 1)
	}
	if log == nil {
		log = logger.NewDefault("oracle-judge")
	}
	return &HTTPJudge{
		client:   client,
		endpoint: parsed,
		apiKey:   strings.TrimSpace(apiKey),
		timeout:  callTimeout,
		limiter:  limiter,
		log:      log,
	}, nil
}

// Judge posts the request and returns the oracle's raw text response.
func (j *HTTPJudge) Judge(ctx context.Context, req Request) (string, error) {
	if err := j.limiter.Wait(ctx); err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode judge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, j.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build judge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if j.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+j.apiKey)
	}

	resp, err := j.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("judge request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("judge status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read judge response: %w", err)
	}
	return string(raw), nil
}
