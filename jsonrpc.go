// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package payments

import (
	"errors"
	"fmt"

	"github.com/go-json-experiment/json/jsontext"
)

// Version is the JSON-RPC protocol version used on the wire.
const Version = "2.0"

// JSON-RPC method names.
const (
	MethodMessageSend      = "message/send"
	MethodMessageStream    = "message/stream"
	MethodTasksGet         = "tasks/get"
	MethodTasksCancel      = "tasks/cancel"
	MethodTasksResubscribe = "tasks/resubscribe"
	MethodPushConfigSet    = "tasks/pushNotificationConfig/set"
	MethodPushConfigGet    = "tasks/pushNotificationConfig/get"
)

// Request is a JSON-RPC 2.0 request envelope. Params are kept raw and
// decoded per method.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      jsontext.Value `json:"id,omitzero"`
	Method  string         `json:"method"`
	Params  jsontext.Value `json:"params,omitzero"`
}

// Validate ensures the Request is a well-formed JSON-RPC 2.0 request.
func (r *Request) Validate() error {
	if r.JSONRPC != Version {
		return fmt.Errorf("invalid jsonrpc version: %q", r.JSONRPC)
	}
	if r.Method == "" {
		return fmt.Errorf("method cannot be empty")
	}
	return nil
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    jsontext.Value `json:"data,omitzero"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Response is a JSON-RPC 2.0 response envelope. Exactly one of Result and
// Error is populated.
type Response struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      jsontext.Value `json:"id,omitzero"`
	Result  any            `json:"result,omitzero"`
	Error   *Error         `json:"error,omitzero"`
}

// NewResponse creates a successful response for the given request id.
func NewResponse(id jsontext.Value, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

// NewErrorResponse creates an error response for the given request id,
// translating RPCError codes and falling back to an internal error.
func NewErrorResponse(id jsontext.Value, err error) *Response {
	rpcErr := &Error{Code: ErrorCodeInternalError, Message: "Internal error"}
	var coded RPCError
	if errors.As(err, &coded) {
		rpcErr = &Error{Code: coded.Code(), Message: coded.Message()}
	}
	return &Response{JSONRPC: Version, ID: id, Error: rpcErr}
}

// MessageSendConfiguration carries caller options for message/send.
type MessageSendConfiguration struct {
	// Blocking distinguishes "explicitly false" from "omitted": an omitted
	// field keeps the blocking default regardless of which other
	// configuration fields are present.
	Blocking               *bool                   `json:"blocking,omitzero"`
	PushNotificationConfig *PushNotificationConfig `json:"pushNotificationConfig,omitzero"`
}

// MessageSendParams are the params of message/send and message/stream.
type MessageSendParams struct {
	Message       *Message                  `json:"message"`
	Configuration *MessageSendConfiguration `json:"configuration,omitzero"`
	Metadata      map[string]any            `json:"metadata,omitzero"`
}

// Validate ensures the MessageSendParams are valid.
func (p *MessageSendParams) Validate() error {
	if p.Message == nil {
		return InvalidParamsError{Detail: "message is required"}
	}
	if err := p.Message.Validate(); err != nil {
		return InvalidParamsError{Detail: err.Error()}
	}
	return nil
}

// Blocking reports whether the caller requested a blocking send. The default
// is blocking, matching the protocol convention.
func (p *MessageSendParams) Blocking() bool {
	if p.Configuration == nil || p.Configuration.Blocking == nil {
		return true
	}
	return *p.Configuration.Blocking
}

// TaskIDParams are the params of the task-scoped methods.
type TaskIDParams struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitzero"`
}

// Validate ensures the TaskIDParams are valid.
func (p *TaskIDParams) Validate() error {
	if p.ID == "" {
		return InvalidParamsError{Detail: "task id is required"}
	}
	return nil
}

// SetPushConfigParams are the params of tasks/pushNotificationConfig/set.
type SetPushConfigParams struct {
	TaskID                 string                  `json:"taskId"`
	PushNotificationConfig *PushNotificationConfig `json:"pushNotificationConfig"`
}

// Validate ensures the SetPushConfigParams are valid.
func (p *SetPushConfigParams) Validate() error {
	if p.TaskID == "" {
		return InvalidParamsError{Detail: "taskId is required"}
	}
	if p.PushNotificationConfig == nil {
		return InvalidParamsError{Detail: "pushNotificationConfig is required"}
	}
	if err := p.PushNotificationConfig.Validate(); err != nil {
		return InvalidParamsError{Detail: err.Error()}
	}
	return nil
}
