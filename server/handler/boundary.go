// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v3/jwt"

	payments "github.com/nevermined-io/payments-go"
	"github.com/nevermined-io/payments-go/server/payment"
)

// Boundary is the HTTP-side payment gate. It runs once per inbound request,
// before dispatch: extracts the bearer token, performs the entitlement
// pre-flight for message sends, and registers the request context keyed by
// message id (or task id when the message already carries one) so the task
// core can correlate it later.
type Boundary struct {
	validator *payment.Validator
	contexts  payment.ContextStore
	logger    *slog.Logger
}

// BoundaryConfig holds configuration for creating a Boundary.
type BoundaryConfig struct {
	Validator *payment.Validator
	Contexts  payment.ContextStore
	Logger    *slog.Logger
}

// NewBoundary creates the HTTP payment boundary.
func NewBoundary(config BoundaryConfig) (*Boundary, error) {
	if config.Validator == nil {
		return nil, errNilValidator
	}
	if config.Contexts == nil {
		return nil, errNilContexts
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Boundary{
		validator: config.Validator,
		contexts:  config.Contexts,
		logger:    logger,
	}, nil
}

// BearerToken extracts the bearer token from a request, or returns an
// UnauthorizedError when the header is missing or malformed.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", payments.UnauthorizedError{Reason: "missing Authorization header"}
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", payments.UnauthorizedError{Reason: "Authorization header is not a bearer token"}
	}
	return token, nil
}

// Admit authorizes one inbound message send: validates the entitlement and
// registers the HTTP request context for the message. Non-message methods
// only require token presence and skip validation and registration.
func (b *Boundary) Admit(ctx context.Context, r *http.Request, params *payments.MessageSendParams) error {
	token, err := BearerToken(r)
	if err != nil {
		return err
	}

	b.logSubject(token)

	result, err := b.validator.Validate(ctx, token, r.URL.Path, r.Method, false)
	if err != nil {
		return err
	}

	reqCtx := &payment.HTTPRequestContext{
		BearerToken:         token,
		URLRequested:        r.URL.Path,
		HTTPMethodRequested: r.Method,
		Validation:          result,
	}

	message := params.Message
	if message.TaskID != "" {
		return b.contexts.SetForTask(ctx, message.TaskID, reqCtx)
	}
	return b.contexts.SetForMessage(ctx, message.MessageID, reqCtx)
}

// logSubject parses the token's claims for logging. Verification is the
// facilitator's job; an unparseable token is still forwarded there.
func (b *Boundary) logSubject(token string) {
	parsed, err := jwt.Parse([]byte(token), jwt.WithValidate(false), jwt.WithVerify(false))
	if err != nil {
		b.logger.Debug("bearer token is not a parseable JWT")
		return
	}
	if sub, ok := parsed.Subject(); ok {
		b.logger.Debug("request authenticated", "subject", sub)
	}
}
