// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package payment

import (
	"context"
	"fmt"

	payments "github.com/nevermined-io/payments-go"
)

// Validator performs the entitlement pre-flight before any executor work
// begins. The transport boundary runs it once per inbound request; the
// result travels with the request context so the task core never repeats
// the call.
type Validator struct {
	facilitator Facilitator
	extension   *payments.PaymentExtension
}

// NewValidator creates a Validator for the agent described by the payment
// extension.
func NewValidator(facilitator Facilitator, extension *payments.PaymentExtension) (*Validator, error) {
	if facilitator == nil {
		return nil, fmt.Errorf("facilitator cannot be nil")
	}
	if extension == nil {
		return nil, fmt.Errorf("payment extension cannot be nil")
	}
	if err := extension.Validate(); err != nil {
		return nil, err
	}
	return &Validator{facilitator: facilitator, extension: extension}, nil
}

// Validate verifies the caller may spend up to the agent's declared credits.
// Returns payments.UnauthorizedError or payments.PaymentRequiredError on
// rejection.
func (v *Validator) Validate(ctx context.Context, bearerToken, url, method string, batch bool) (*ValidationResult, error) {
	if bearerToken == "" {
		return nil, payments.UnauthorizedError{Reason: "missing bearer token"}
	}

	result, err := v.facilitator.Validate(ctx, ValidateRequest{
		AgentID:     v.extension.AgentID,
		PlanID:      v.extension.PlanID,
		BearerToken: bearerToken,
		URL:         url,
		HTTPMethod:  method,
		MaxCredits:  v.extension.Credits,
		Batch:       batch,
	})
	if err != nil {
		return nil, err
	}
	if !result.HasBalance {
		return nil, payments.PaymentRequiredError{Reason: "subscriber has no balance"}
	}
	return result, nil
}

// Extension returns the agent's payment extension.
func (v *Validator) Extension() *payments.PaymentExtension {
	return v.extension
}
