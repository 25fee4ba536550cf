// Package registry checks professional licensing registries (CRM for
// physicians, CRF for pharmacists). Results are advisory only: they are never
// persisted and never gate a ledger transaction.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Professional identifies a practitioner in an external registry.
type Professional struct {
	Name    string `json:"name"`
	Region  string `json:"region"`
	License string `json:"license"`
}

type Lookup interface {
	Exists(ctx context.Context, p Professional) (bool, error)
}

type httpLookup struct {
	client *http.Client
	url    string
	logger *zap.Logger
}

// NewHTTPLookup queries a registry endpoint that answers {"exists": bool}.
func NewHTTPLookup(url string, timeout time.Duration, logger *zap.Logger) Lookup {
	return &httpLookup{
		client: &http.Client{Timeout: timeout},
		url:    url,
		logger: logger,
	}
}

func (l *httpLookup) Exists(ctx context.Context, p Professional) (bool, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("registry lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("registry lookup returned status %d", resp.StatusCode)
	}

	var result struct {
		Exists bool `json:"exists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decoding registry response: %w", err)
	}

	l.logger.Debug("registry lookup",
		zap.String("license", p.License),
		zap.Bool("exists", result.Exists))
	return result.Exists, nil
}
