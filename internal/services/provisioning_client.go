package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ProvisioningClient talks to the directory provisioning bridge (the service
// that executes onboarding/offboarding runbooks against Google Workspace and
// Microsoft 365). It implements both executor interfaces. Calls are
// rate-limited so a large poll batch cannot hammer the directory APIs behind
// the bridge.
type ProvisioningClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

func NewProvisioningClient(baseURL string, timeoutMS int, rps float64, burst int, log *zap.Logger) *ProvisioningClient {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &ProvisioningClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}
}

func (c *ProvisioningClient) ExecuteOnboarding(ctx context.Context, req OnboardingRequest) (*OnboardingResult, error) {
	var result OnboardingResult
	if err := c.post(ctx, "/internal/onboarding/execute", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *ProvisioningClient) ExecuteFromTemplate(ctx context.Context, req OffboardingRequest) (*OffboardingResult, error) {
	var result OffboardingResult
	if err := c.post(ctx, "/internal/offboarding/execute-from-template", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *ProvisioningClient) post(ctx context.Context, path string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provisioning bridge unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("provisioning bridge returned %d: %s", resp.StatusCode, string(respBody))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
