// Package anchor forwards finalized contributions to an external anchoring
// service. Delivery is best effort: the archive never waits on or retries
// anchoring.
package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Inscribe-Network/archive_layer/internal/app/domain/contribution"
	"github.com/Inscribe-Network/archive_layer/internal/app/domain/ledger"
	"github.com/Inscribe-Network/archive_layer/pkg/logger"
)

// Notifier posts anchoring payloads over HTTP.
type Notifier struct {
	client   *http.Client
	endpoint *url.URL
	apiKey   string
	log      *logger.Logger
}

// NewNotifier constructs a notifier for the given endpoint.
func NewNotifier(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*Notifier, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("anchor endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse anchor endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("anchor")
	}
	return &Notifier{
		client:   client,
		endpoint: parsed,
		apiKey:   strings.TrimSpace(apiKey),
		log:      log,
	}, nil
}

type payload struct {
	ContributionID string                    `json:"contribution_id"`
	Status         contribution.Status       `json:"final_status"`
	Tags           []string                  `json:"tags"`
	Allocations    []ledger.AllocationRecord `json:"allocations"`
}

// Notify sends one contribution to the anchoring service. A non-2xx reply is
// an error for the caller to log; nothing is retried here.
func (n *Notifier) Notify(ctx context.Context, c contribution.Contribution) error {
	body, err := json.Marshal(payload{
		ContributionID: c.ID,
		Status:         c.Status,
		Tags:           c.Tags,
		Allocations:    c.Allocations,
	})
	if err != nil {
		return fmt.Errorf("encode anchor payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build anchor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("anchor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("anchor status %d", resp.StatusCode)
	}

	n.log.WithField("contribution_id", c.ID).Info("contribution anchored")
	return nil
}
