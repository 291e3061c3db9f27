// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package payment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-json-experiment/json"

	payments "github.com/nevermined-io/payments-go"
)

// ValidationResult is the facilitator's answer to an entitlement pre-flight.
type ValidationResult struct {
	RequestID  string `json:"requestId"`
	HasBalance bool   `json:"hasBalance"`
	// MaxCredits is the spend ceiling the facilitator approved for this
	// request.
	MaxCredits uint64         `json:"maxCredits,omitzero"`
	Extra      map[string]any `json:"extra,omitzero"`
}

// SettlementResult is the outcome of a credit redemption. CreditsCharged may
// differ from the credits requested when margin pricing applies. Deferred is
// set by the batch strategies, which queue the redemption for a separate
// batch-settlement job instead of burning immediately.
type SettlementResult struct {
	TxHash         string `json:"txHash,omitzero"`
	CreditsCharged uint64 `json:"creditsCharged"`
	Deferred       bool   `json:"deferred,omitzero"`
}

// ValidateRequest carries the parameters of an entitlement pre-flight.
type ValidateRequest struct {
	AgentID     string `json:"agentId"`
	PlanID      string `json:"planId"`
	BearerToken string `json:"-"`
	URL         string `json:"url"`
	HTTPMethod  string `json:"httpMethod"`
	MaxCredits  uint64 `json:"maxCredits"`
	Batch       bool   `json:"batch,omitzero"`
}

// RedeemRequest carries the parameters of a credit redemption.
type RedeemRequest struct {
	AgentID       string  `json:"agentId"`
	PlanID        string  `json:"planId"`
	RequestID     string  `json:"requestId"`
	BearerToken   string  `json:"-"`
	TaskID        string  `json:"taskId"`
	CreditsUsed   uint64  `json:"creditsUsed"`
	UseMargin     bool    `json:"useMargin,omitzero"`
	MarginPercent float64 `json:"marginPercent,omitzero"`
}

// Facilitator is the external service that verifies and settles payment
// entitlements. Validate is read-only and may be retried by the boundary
// layer; Redeem burns credits and is invoked exactly once per terminal task.
type Facilitator interface {
	Validate(ctx context.Context, req ValidateRequest) (*ValidationResult, error)
	Redeem(ctx context.Context, req RedeemRequest) (*SettlementResult, error)
}

// HTTPFacilitator talks to a facilitator service over HTTP.
type HTTPFacilitator struct {
	baseURL string
	client  *http.Client
}

var _ Facilitator = (*HTTPFacilitator)(nil)

// HTTPFacilitatorConfig holds configuration for HTTPFacilitator.
type HTTPFacilitatorConfig struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPFacilitator creates a facilitator client for the given base URL.
func NewHTTPFacilitator(config HTTPFacilitatorConfig) (*HTTPFacilitator, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("facilitator base URL cannot be empty")
	}
	client := config.Client
	if client == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPFacilitator{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		client:  client,
	}, nil
}

// Validate performs the entitlement pre-flight.
func (f *HTTPFacilitator) Validate(ctx context.Context, req ValidateRequest) (*ValidationResult, error) {
	var result ValidationResult
	if err := f.post(ctx, "/validate", req.BearerToken, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Redeem settles a credit redemption.
func (f *HTTPFacilitator) Redeem(ctx context.Context, req RedeemRequest) (*SettlementResult, error) {
	var result SettlementResult
	if err := f.post(ctx, "/redeem", req.BearerToken, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (f *HTTPFacilitator) post(ctx context.Context, path, token string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal facilitator request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("facilitator request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		_, _ = io.Copy(io.Discard, resp.Body)
		return payments.UnauthorizedError{Reason: "facilitator rejected token"}
	case resp.StatusCode == http.StatusPaymentRequired:
		_, _ = io.Copy(io.Discard, resp.Body)
		return payments.PaymentRequiredError{Reason: "insufficient entitlement"}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("facilitator returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.UnmarshalRead(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode facilitator response: %w", err)
	}
	return nil
}
