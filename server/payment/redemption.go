// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package payment

import (
	"context"
	"fmt"
	"math"
	"math/big"

	payments "github.com/nevermined-io/payments-go"
)

// Method is one of the four redemption method combinations. Batch and margin
// are independent axes.
type Method string

// Redemption methods.
const (
	MethodFixed       Method = "fixed"
	MethodMargin      Method = "margin"
	MethodBatchFixed  Method = "batch-fixed"
	MethodBatchMargin Method = "batch-margin"
)

// Batch reports whether settlement is deferred to a batch job.
func (m Method) Batch() bool {
	return m == MethodBatchFixed || m == MethodBatchMargin
}

// ResolveMethod derives the redemption method from server-side agent
// configuration. Caller-supplied data never participates.
func ResolveMethod(config *payments.RedemptionConfig) Method {
	if config == nil {
		return MethodFixed
	}
	switch {
	case config.UseBatch && config.UseMargin:
		return MethodBatchMargin
	case config.UseBatch:
		return MethodBatchFixed
	case config.UseMargin:
		return MethodMargin
	default:
		return MethodFixed
	}
}

// Strategy settles credits for one terminal task.
type Strategy interface {
	// Settle redeems creditsUsed for the task, returning the transaction id
	// and the credits actually charged. Batch strategies return a deferred
	// marker instead of calling the facilitator.
	Settle(ctx context.Context, task *payments.Task, reqCtx *HTTPRequestContext, creditsUsed uint64) (*SettlementResult, error)

	// Method returns the strategy's redemption method.
	Method() Method
}

// NewStrategy creates the Strategy for a resolved method.
func NewStrategy(method Method, facilitator Facilitator, extension *payments.PaymentExtension, pending *PendingStore) (Strategy, error) {
	if extension == nil {
		return nil, fmt.Errorf("payment extension cannot be nil")
	}
	switch method {
	case MethodFixed, MethodMargin:
		if facilitator == nil {
			return nil, fmt.Errorf("facilitator cannot be nil for method %s", method)
		}
		return &singleStrategy{
			method:      method,
			facilitator: facilitator,
			extension:   extension,
		}, nil
	case MethodBatchFixed, MethodBatchMargin:
		if pending == nil {
			return nil, fmt.Errorf("pending store cannot be nil for method %s", method)
		}
		return &batchStrategy{
			method:    method,
			extension: extension,
			pending:   pending,
		}, nil
	default:
		return nil, fmt.Errorf("unknown redemption method: %q", method)
	}
}

// singleStrategy redeems immediately against the facilitator, with or
// without margin pricing.
type singleStrategy struct {
	method      Method
	facilitator Facilitator
	extension   *payments.PaymentExtension
}

var _ Strategy = (*singleStrategy)(nil)

func (s *singleStrategy) Settle(ctx context.Context, task *payments.Task, reqCtx *HTTPRequestContext, creditsUsed uint64) (*SettlementResult, error) {
	req := RedeemRequest{
		AgentID:     s.extension.AgentID,
		PlanID:      s.extension.PlanID,
		BearerToken: reqCtx.BearerToken,
		TaskID:      task.ID,
		CreditsUsed: creditsUsed,
	}
	if reqCtx.Validation != nil {
		req.RequestID = reqCtx.Validation.RequestID
	}
	if s.method == MethodMargin {
		req.UseMargin = true
		if s.extension.RedemptionConfig != nil {
			req.MarginPercent = s.extension.RedemptionConfig.MarginPercent
		}
	}
	return s.facilitator.Redeem(ctx, req)
}

func (s *singleStrategy) Method() Method { return s.method }

// batchStrategy queues the redemption for a separate batch-settlement job.
type batchStrategy struct {
	method    Method
	extension *payments.PaymentExtension
	pending   *PendingStore
}

var _ Strategy = (*batchStrategy)(nil)

func (s *batchStrategy) Settle(ctx context.Context, task *payments.Task, reqCtx *HTTPRequestContext, creditsUsed uint64) (*SettlementResult, error) {
	entry := PendingSettlement{
		AccessToken: reqCtx.BearerToken,
		CreditsUsed: creditsUsed,
	}
	if reqCtx.Validation != nil {
		entry.PaymentProof = reqCtx.Validation.RequestID
	}
	s.pending.Put(task.ID, entry)
	return &SettlementResult{CreditsCharged: creditsUsed, Deferred: true}, nil
}

func (s *batchStrategy) Method() Method { return s.method }

// ParseCredits extracts a credit amount reported in event metadata. The
// executor may report it as a number, a numeric string, or a big integer
// string; anything else, a negative value, or a value exceeding uint64 is
// rejected.
func ParseCredits(value any) (uint64, bool) {
	switch v := value.(type) {
	case uint64:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case float64:
		if v < 0 || v != math.Trunc(v) || v > math.MaxUint64 {
			return 0, false
		}
		return uint64(v), true
	case string:
		n, ok := new(big.Int).SetString(v, 10)
		if !ok || n.Sign() < 0 || !n.IsUint64() {
			return 0, false
		}
		return n.Uint64(), true
	default:
		return 0, false
	}
}
