// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	payments "github.com/nevermined-io/payments-go"
	"github.com/nevermined-io/payments-go/server/event"
	"github.com/nevermined-io/payments-go/server/execution"
	"github.com/nevermined-io/payments-go/server/payment"
)

// trackingExecutor records whether it ran before delegating.
type trackingExecutor struct {
	mu      sync.Mutex
	invoked bool
	inner   execution.AgentExecutor
}

func (e *trackingExecutor) Execute(ctx context.Context, reqCtx *execution.RequestContext, queue *event.Queue) error {
	e.mu.Lock()
	e.invoked = true
	e.mu.Unlock()
	return e.inner.Execute(ctx, reqCtx, queue)
}

func (e *trackingExecutor) Cancel(ctx context.Context, reqCtx *execution.RequestContext, queue *event.Queue) error {
	return e.inner.Cancel(ctx, reqCtx, queue)
}

func (e *trackingExecutor) ran() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.invoked
}

type httpFixture struct {
	*fixture
	rpc      *JSONRPCHandler
	executor *trackingExecutor
}

func newHTTPFixture(t *testing.T) *httpFixture {
	t.Helper()

	executor := &trackingExecutor{inner: completingExecutor(uint64(3))}
	fx := newFixture(t, executor)

	validator, err := payment.NewValidator(fx.facilitator, &payments.PaymentExtension{
		AgentID:     "agent-1",
		PlanID:      "plan-1",
		PaymentType: payments.PaymentTypeFixed,
		Credits:     5,
	})
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	boundary, err := NewBoundary(BoundaryConfig{Validator: validator, Contexts: fx.contexts})
	if err != nil {
		t.Fatalf("NewBoundary() error = %v", err)
	}
	rpc, err := NewJSONRPCHandler(JSONRPCHandlerConfig{Handler: fx.handler, Boundary: boundary})
	if err != nil {
		t.Fatalf("NewJSONRPCHandler() error = %v", err)
	}
	return &httpFixture{fixture: fx, rpc: rpc, executor: executor}
}

func (fx *httpFixture) post(t *testing.T, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	fx.rpc.ServeHTTP(rec, req)
	return rec
}

// rpcResponse mirrors payments.Response with a raw result so tests can
// decode it into the expected concrete type.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      jsontext.Value  `json:"id"`
	Result  jsontext.Value  `json:"result"`
	Error   *payments.Error `json:"error"`
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) *rpcResponse {
	t.Helper()

	var resp rpcResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v\nbody: %s", err, rec.Body.String())
	}
	return &resp
}

const sendBody = `{
	"jsonrpc": "2.0",
	"id": 1,
	"method": "message/send",
	"params": {
		"message": {
			"kind": "message",
			"messageId": "msg-1",
			"role": "user",
			"parts": [{"kind": "text", "text": "do the thing"}]
		}
	}
}`

func TestServeHTTP_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	fx := newHTTPFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	fx.rpc.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestServeHTTP_ParseError(t *testing.T) {
	t.Parallel()

	fx := newHTTPFixture(t)
	rec := fx.post(t, `{not json`, "tok")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != payments.ErrorCodeJSONParse {
		t.Errorf("error = %+v, want code %d", resp.Error, payments.ErrorCodeJSONParse)
	}
}

func TestServeHTTP_InvalidRequest(t *testing.T) {
	t.Parallel()

	fx := newHTTPFixture(t)
	rec := fx.post(t, `{"jsonrpc": "1.0", "id": 1, "method": "message/send"}`, "tok")

	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != payments.ErrorCodeInvalidRequest {
		t.Errorf("error = %+v, want code %d", resp.Error, payments.ErrorCodeInvalidRequest)
	}
}

func TestServeHTTP_MethodNotFound(t *testing.T) {
	t.Parallel()

	fx := newHTTPFixture(t)
	rec := fx.post(t, `{"jsonrpc": "2.0", "id": 1, "method": "tasks/unknown"}`, "tok")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != payments.ErrorCodeMethodNotFound {
		t.Errorf("error = %+v, want code %d", resp.Error, payments.ErrorCodeMethodNotFound)
	}
}

func TestServeHTTP_MissingBearer(t *testing.T) {
	t.Parallel()

	fx := newHTTPFixture(t)
	rec := fx.post(t, sendBody, "")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error.Message == "" {
		t.Error("401 body should carry an error message")
	}
	if fx.executor.ran() {
		t.Error("executor must not run for unauthenticated requests")
	}
}

func TestServeHTTP_PaymentRequired(t *testing.T) {
	t.Parallel()

	fx := newHTTPFixture(t)
	fx.facilitator.noBalance = true
	rec := fx.post(t, sendBody, "tok")

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	var body struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error.Code != payments.ErrorCodePaymentRequired {
		t.Errorf("error code = %d, want %d", body.Error.Code, payments.ErrorCodePaymentRequired)
	}
	if fx.executor.ran() {
		t.Error("executor must not run when entitlement is refused")
	}
}

func TestServeHTTP_MessageSend(t *testing.T) {
	t.Parallel()

	fx := newHTTPFixture(t)
	rec := fx.post(t, sendBody, "tok")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	var resolved payments.Task
	if err := json.Unmarshal(resp.Result, &resolved); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if resolved.Status.State != payments.TaskStateCompleted {
		t.Errorf("state = %q, want completed", resolved.Status.State)
	}
	if resolved.Metadata[payments.MetadataTxHash] != "0xabc" {
		t.Errorf("txHash = %v, want settlement outcome", resolved.Metadata[payments.MetadataTxHash])
	}
	if fx.facilitator.redeemCount() != 1 {
		t.Errorf("redeem calls = %d, want 1", fx.facilitator.redeemCount())
	}
}

func TestServeHTTP_GetTaskNotFound(t *testing.T) {
	t.Parallel()

	fx := newHTTPFixture(t)
	body := `{"jsonrpc": "2.0", "id": 2, "method": "tasks/get", "params": {"id": "nope"}}`
	rec := fx.post(t, body, "tok")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != payments.ErrorCodeTaskNotFound {
		t.Errorf("error = %+v, want code %d", resp.Error, payments.ErrorCodeTaskNotFound)
	}
}

func TestServeHTTP_GetTaskWithoutBearer(t *testing.T) {
	t.Parallel()

	fx := newHTTPFixture(t)
	body := `{"jsonrpc": "2.0", "id": 2, "method": "tasks/get", "params": {"id": "task-1"}}`
	rec := fx.post(t, body, "")

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestServeHTTP_MessageStream(t *testing.T) {
	t.Parallel()

	fx := newHTTPFixture(t)
	body := strings.Replace(sendBody, "message/send", "message/stream", 1)
	rec := fx.post(t, body, "tok")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q, want text/event-stream", ct)
	}

	var frames []string
	for _, chunk := range strings.Split(rec.Body.String(), "\n\n") {
		if data, ok := strings.CutPrefix(chunk, "data: "); ok {
			frames = append(frames, data)
		}
	}
	if len(frames) != 2 {
		t.Fatalf("received %d frames, want working and completed\nbody: %s", len(frames), rec.Body.String())
	}

	var last rpcResponse
	if err := json.Unmarshal([]byte(frames[len(frames)-1]), &last); err != nil {
		t.Fatalf("decoding final frame: %v", err)
	}
	var evt payments.TaskStatusUpdateEvent
	if err := json.Unmarshal(last.Result, &evt); err != nil {
		t.Fatalf("decoding final event: %v", err)
	}
	if evt.Status.State != payments.TaskStateCompleted || !evt.Final {
		t.Errorf("final frame = %+v, want final completed status", evt)
	}
	if evt.Metadata[payments.MetadataTxHash] != "0xabc" {
		t.Errorf("final frame txHash = %v, want settlement outcome", evt.Metadata[payments.MetadataTxHash])
	}
	if fx.facilitator.redeemCount() != 1 {
		t.Errorf("redeem calls = %d, want 1", fx.facilitator.redeemCount())
	}
}
