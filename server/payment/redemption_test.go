// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	payments "github.com/nevermined-io/payments-go"
)

// fakeFacilitator scripts facilitator responses and records redemptions.
type fakeFacilitator struct {
	mu sync.Mutex

	validateResult *ValidationResult
	validateErr    error
	redeemResult   *SettlementResult
	redeemErr      error
	redeemDelay    time.Duration

	validateCalls []ValidateRequest
	redeemCalls   []RedeemRequest
}

var _ Facilitator = (*fakeFacilitator)(nil)

func (f *fakeFacilitator) Validate(ctx context.Context, req ValidateRequest) (*ValidationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validateCalls = append(f.validateCalls, req)
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	if f.validateResult != nil {
		return f.validateResult, nil
	}
	return &ValidationResult{RequestID: "req-1", HasBalance: true}, nil
}

func (f *fakeFacilitator) Redeem(ctx context.Context, req RedeemRequest) (*SettlementResult, error) {
	if f.redeemDelay > 0 {
		time.Sleep(f.redeemDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redeemCalls = append(f.redeemCalls, req)
	if f.redeemErr != nil {
		return nil, f.redeemErr
	}
	if f.redeemResult != nil {
		return f.redeemResult, nil
	}
	return &SettlementResult{TxHash: "0xabc", CreditsCharged: req.CreditsUsed}, nil
}

func (f *fakeFacilitator) redeemCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.redeemCalls)
}

func testExtension(config *payments.RedemptionConfig) *payments.PaymentExtension {
	return &payments.PaymentExtension{
		AgentID:          "agent-1",
		PlanID:           "plan-1",
		PaymentType:      payments.PaymentTypeFixed,
		Credits:          5,
		RedemptionConfig: config,
	}
}

func TestResolveMethod(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		config *payments.RedemptionConfig
		want   Method
	}{
		"nil config":       {nil, MethodFixed},
		"neither axis":     {&payments.RedemptionConfig{}, MethodFixed},
		"margin only":      {&payments.RedemptionConfig{UseMargin: true}, MethodMargin},
		"batch only":       {&payments.RedemptionConfig{UseBatch: true}, MethodBatchFixed},
		"batch and margin": {&payments.RedemptionConfig{UseBatch: true, UseMargin: true}, MethodBatchMargin},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := ResolveMethod(tt.config); got != tt.want {
				t.Errorf("ResolveMethod() = %q, want %q", got, tt.want)
			}
			if got := tt.want.Batch(); got != (tt.want == MethodBatchFixed || tt.want == MethodBatchMargin) {
				t.Errorf("Batch() = %v inconsistent with method %q", got, tt.want)
			}
		})
	}
}

func TestParseCredits(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		value  any
		want   uint64
		wantOK bool
	}{
		"uint64":                 {uint64(7), 7, true},
		"int":                    {3, 3, true},
		"negative int":           {-1, 0, false},
		"int64":                  {int64(9), 9, true},
		"integral float":         {float64(4), 4, true},
		"fractional float":       {float64(4.5), 0, false},
		"negative float":         {float64(-2), 0, false},
		"numeric string":         {"12", 12, true},
		"big integer string":     {"18446744073709551615", 18446744073709551615, true},
		"over uint64 string":     {"18446744073709551616", 0, false},
		"negative string":        {"-5", 0, false},
		"non-numeric string":     {"abc", 0, false},
		"unsupported type":       {true, 0, false},
		"nil":                    {nil, 0, false},
		"map is not a credit":    {map[string]any{}, 0, false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, ok := ParseCredits(tt.value)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseCredits(%v) = (%d, %v), want (%d, %v)",
					tt.value, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSingleStrategy_Settle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	task := &payments.Task{ID: "task-1", ContextID: "ctx-1"}
	reqCtx := &HTTPRequestContext{
		BearerToken: "tok",
		Validation:  &ValidationResult{RequestID: "req-9", HasBalance: true},
	}

	tests := map[string]struct {
		method     Method
		config     *payments.RedemptionConfig
		wantMargin bool
	}{
		"fixed": {
			method: MethodFixed,
			config: &payments.RedemptionConfig{},
		},
		"margin": {
			method:     MethodMargin,
			config:     &payments.RedemptionConfig{UseMargin: true, MarginPercent: 20},
			wantMargin: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			facilitator := &fakeFacilitator{}
			strategy, err := NewStrategy(tt.method, facilitator, testExtension(tt.config), nil)
			if err != nil {
				t.Fatalf("NewStrategy() error = %v", err)
			}

			result, err := strategy.Settle(ctx, task, reqCtx, 3)
			if err != nil {
				t.Fatalf("Settle() error = %v", err)
			}
			if result.Deferred {
				t.Error("single settlement must not be deferred")
			}

			if len(facilitator.redeemCalls) != 1 {
				t.Fatalf("redeem calls = %d, want 1", len(facilitator.redeemCalls))
			}
			req := facilitator.redeemCalls[0]
			if req.RequestID != "req-9" {
				t.Errorf("request id = %q, want the validation request id", req.RequestID)
			}
			if req.CreditsUsed != 3 || req.TaskID != "task-1" {
				t.Errorf("redeem request = %+v", req)
			}
			if req.UseMargin != tt.wantMargin {
				t.Errorf("useMargin = %v, want %v", req.UseMargin, tt.wantMargin)
			}
			if tt.wantMargin && req.MarginPercent != 20 {
				t.Errorf("marginPercent = %v, want 20", req.MarginPercent)
			}
		})
	}
}

func TestBatchStrategy_Settle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pending := NewPendingStore()
	strategy, err := NewStrategy(MethodBatchFixed, nil, testExtension(&payments.RedemptionConfig{UseBatch: true}), pending)
	if err != nil {
		t.Fatalf("NewStrategy() error = %v", err)
	}

	task := &payments.Task{ID: "task-1", ContextID: "ctx-1"}
	reqCtx := &HTTPRequestContext{
		BearerToken: "tok",
		Validation:  &ValidationResult{RequestID: "req-9", HasBalance: true},
	}

	result, err := strategy.Settle(ctx, task, reqCtx, 4)
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if !result.Deferred {
		t.Error("batch settlement must be deferred")
	}

	entry, ok := pending.Take("task-1")
	if !ok {
		t.Fatal("pending store should hold the queued settlement")
	}
	if entry.CreditsUsed != 4 || entry.AccessToken != "tok" || entry.PaymentProof != "req-9" {
		t.Errorf("pending entry = %+v", entry)
	}

	// Take consumes the entry.
	if _, ok := pending.Take("task-1"); ok {
		t.Error("Take() should consume the entry")
	}
}

func TestNewStrategy_Errors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		method      Method
		facilitator Facilitator
		extension   *payments.PaymentExtension
		pending     *PendingStore
	}{
		"nil extension":                  {MethodFixed, &fakeFacilitator{}, nil, nil},
		"single without facilitator":     {MethodFixed, nil, testExtension(nil), nil},
		"batch without pending store":    {MethodBatchFixed, &fakeFacilitator{}, testExtension(nil), nil},
		"unknown method":                 {Method("bogus"), &fakeFacilitator{}, testExtension(nil), NewPendingStore()},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if _, err := NewStrategy(tt.method, tt.facilitator, tt.extension, tt.pending); err == nil {
				t.Error("NewStrategy() should fail")
			}
		})
	}
}
