package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPChecker asks an external verification service whether a principal is a
// member in good standing. Any transport or decode failure is returned as an
// error so the entitlement engine can fail closed.
type HTTPChecker struct {
	baseURL string
	client  *http.Client
}

func NewHTTPChecker(baseURL string) *HTTPChecker {
	return &HTTPChecker{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPChecker) IsVerified(ctx context.Context, principalID int64) (bool, error) {
	url := fmt.Sprintf("%s/verify/%d", c.baseURL, principalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("verification service returned %d", resp.StatusCode)
	}

	var body struct {
		Verified bool `json:"verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, err
	}
	return body.Verified, nil
}

// Static is a checker with a fixed answer, used when no verification service
// is configured and in tests.
type Static bool

func (s Static) IsVerified(ctx context.Context, principalID int64) (bool, error) {
	return bool(s), nil
}
