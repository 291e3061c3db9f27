// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-json-experiment/json"

	payments "github.com/nevermined-io/payments-go"
)

// JSONRPCHandler serves the protocol over HTTP POST to a single endpoint.
// Streamed methods (message/stream, tasks/resubscribe) answer with
// server-sent events; everything else answers with a single JSON-RPC
// response. Authentication failures surface as HTTP 401/402 before
// dispatch; protocol failures ride inside a 200 response per JSON-RPC
// convention.
type JSONRPCHandler struct {
	handler  *RequestHandler
	boundary *Boundary
	logger   *slog.Logger
}

// JSONRPCHandlerConfig holds configuration for JSONRPCHandler.
type JSONRPCHandlerConfig struct {
	Handler  *RequestHandler
	Boundary *Boundary
	Logger   *slog.Logger
}

// NewJSONRPCHandler creates the HTTP transport for a RequestHandler.
func NewJSONRPCHandler(config JSONRPCHandlerConfig) (*JSONRPCHandler, error) {
	if config.Handler == nil {
		return nil, fmt.Errorf("request handler cannot be nil")
	}
	if config.Boundary == nil {
		return nil, fmt.Errorf("boundary cannot be nil")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONRPCHandler{
		handler:  config.Handler,
		boundary: config.Boundary,
		logger:   logger,
	}, nil
}

// ServeHTTP implements http.Handler.
func (h *JSONRPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req payments.Request
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		h.writeResponse(w, &payments.Response{
			JSONRPC: payments.Version,
			Error:   &payments.Error{Code: payments.ErrorCodeJSONParse, Message: "Parse error"},
		})
		return
	}
	if err := req.Validate(); err != nil {
		h.writeResponse(w, &payments.Response{
			JSONRPC: payments.Version,
			ID:      req.ID,
			Error:   &payments.Error{Code: payments.ErrorCodeInvalidRequest, Message: "Invalid Request"},
		})
		return
	}

	switch req.Method {
	case payments.MethodMessageSend:
		h.handleMessageSend(w, r, &req)
	case payments.MethodMessageStream:
		h.handleMessageStream(w, r, &req)
	case payments.MethodTasksGet:
		h.handleTaskMethod(w, r, &req, func(params *payments.TaskIDParams) (any, error) {
			return h.handler.OnGetTask(r.Context(), params)
		})
	case payments.MethodTasksCancel:
		h.handleTaskMethod(w, r, &req, func(params *payments.TaskIDParams) (any, error) {
			return h.handler.OnCancelTask(r.Context(), params)
		})
	case payments.MethodPushConfigGet:
		h.handleTaskMethod(w, r, &req, func(params *payments.TaskIDParams) (any, error) {
			return h.handler.OnGetPushConfig(r.Context(), params)
		})
	case payments.MethodPushConfigSet:
		h.handlePushConfigSet(w, r, &req)
	case payments.MethodTasksResubscribe:
		h.handleResubscribe(w, r, &req)
	default:
		h.writeResponse(w, payments.NewErrorResponse(req.ID, payments.MethodNotFoundError{Method: req.Method}))
	}
}

func (h *JSONRPCHandler) handleMessageSend(w http.ResponseWriter, r *http.Request, req *payments.Request) {
	params, ok := h.admitMessage(w, r, req)
	if !ok {
		return
	}
	result, err := h.handler.OnMessageSend(r.Context(), params)
	if err != nil {
		h.writeResponse(w, payments.NewErrorResponse(req.ID, err))
		return
	}
	h.writeResponse(w, payments.NewResponse(req.ID, result))
}

func (h *JSONRPCHandler) handleMessageStream(w http.ResponseWriter, r *http.Request, req *payments.Request) {
	params, ok := h.admitMessage(w, r, req)
	if !ok {
		return
	}
	events, err := h.handler.OnMessageStream(r.Context(), params)
	if err != nil {
		h.writeResponse(w, payments.NewErrorResponse(req.ID, err))
		return
	}
	h.streamEvents(w, r, req, events)
}

func (h *JSONRPCHandler) handleResubscribe(w http.ResponseWriter, r *http.Request, req *payments.Request) {
	if _, err := BearerToken(r); err != nil {
		h.writeAuthError(w, err)
		return
	}
	var params payments.TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.writeResponse(w, payments.NewErrorResponse(req.ID, payments.InvalidParamsError{Detail: err.Error()}))
		return
	}
	events, err := h.handler.OnResubscribe(r.Context(), &params)
	if err != nil {
		h.writeResponse(w, payments.NewErrorResponse(req.ID, err))
		return
	}
	h.streamEvents(w, r, req, events)
}

func (h *JSONRPCHandler) handleTaskMethod(w http.ResponseWriter, r *http.Request, req *payments.Request, op func(*payments.TaskIDParams) (any, error)) {
	if _, err := BearerToken(r); err != nil {
		h.writeAuthError(w, err)
		return
	}
	var params payments.TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.writeResponse(w, payments.NewErrorResponse(req.ID, payments.InvalidParamsError{Detail: err.Error()}))
		return
	}
	result, err := op(&params)
	if err != nil {
		h.writeResponse(w, payments.NewErrorResponse(req.ID, err))
		return
	}
	h.writeResponse(w, payments.NewResponse(req.ID, result))
}

func (h *JSONRPCHandler) handlePushConfigSet(w http.ResponseWriter, r *http.Request, req *payments.Request) {
	if _, err := BearerToken(r); err != nil {
		h.writeAuthError(w, err)
		return
	}
	var params payments.SetPushConfigParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.writeResponse(w, payments.NewErrorResponse(req.ID, payments.InvalidParamsError{Detail: err.Error()}))
		return
	}
	result, err := h.handler.OnSetPushConfig(r.Context(), &params)
	if err != nil {
		h.writeResponse(w, payments.NewErrorResponse(req.ID, err))
		return
	}
	h.writeResponse(w, payments.NewResponse(req.ID, result))
}

// admitMessage decodes the send params and runs the payment boundary.
// Returns false when a response has already been written.
func (h *JSONRPCHandler) admitMessage(w http.ResponseWriter, r *http.Request, req *payments.Request) (*payments.MessageSendParams, bool) {
	var params payments.MessageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.writeResponse(w, payments.NewErrorResponse(req.ID, payments.InvalidParamsError{Detail: err.Error()}))
		return nil, false
	}
	if err := params.Validate(); err != nil {
		h.writeResponse(w, payments.NewErrorResponse(req.ID, err))
		return nil, false
	}
	if err := h.boundary.Admit(r.Context(), r, &params); err != nil {
		h.writeAuthError(w, err)
		return nil, false
	}
	return &params, true
}

// writeAuthError maps authentication failures to their HTTP status:
// 401 for a missing or invalid token, 402 when payment validation failed.
func (h *JSONRPCHandler) writeAuthError(w http.ResponseWriter, err error) {
	var unauthorized payments.UnauthorizedError
	if errors.As(err, &unauthorized) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.MarshalWrite(w, map[string]any{
			"error": map[string]any{"message": unauthorized.Error()},
		})
		return
	}

	var paymentRequired payments.PaymentRequiredError
	if errors.As(err, &paymentRequired) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.MarshalWrite(w, map[string]any{
			"error": map[string]any{
				"code":    paymentRequired.Code(),
				"message": paymentRequired.Error(),
			},
		})
		return
	}

	h.logger.Error("boundary admission failed", "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func (h *JSONRPCHandler) writeResponse(w http.ResponseWriter, resp *payments.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.MarshalWrite(w, resp); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// streamEvents writes each event as a server-sent event wrapped in a
// JSON-RPC response envelope.
func (h *JSONRPCHandler) streamEvents(w http.ResponseWriter, r *http.Request, req *payments.Request, events <-chan payments.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(payments.NewResponse(req.ID, evt))
			if err != nil {
				h.logger.Error("failed to marshal stream event", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
