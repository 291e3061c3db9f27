// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package payments

import "fmt"

// JSON-RPC error codes used by the protocol.
const (
	ErrorCodeTaskNotFound    = -32001
	ErrorCodePaymentRequired = -32001
	ErrorCodeJSONParse       = -32700
	ErrorCodeInvalidRequest  = -32600
	ErrorCodeMethodNotFound  = -32601
	ErrorCodeInvalidParams   = -32602
	ErrorCodeInternalError   = -32603
)

// RPCError is an error carrying a JSON-RPC error code.
type RPCError interface {
	error
	Code() int
	Message() string
}

// TaskNotFoundError indicates the referenced task does not exist.
type TaskNotFoundError struct {
	TaskID string
}

func (e TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// Code implements RPCError.
func (e TaskNotFoundError) Code() int { return ErrorCodeTaskNotFound }

// Message implements RPCError.
func (e TaskNotFoundError) Message() string { return "Task not found" }

// PaymentRequiredError indicates the bearer token is valid but the caller
// lacks the entitlement to spend the requested credits. Surfaced as HTTP 402
// at the transport boundary.
type PaymentRequiredError struct {
	Reason string
}

func (e PaymentRequiredError) Error() string {
	if e.Reason == "" {
		return "payment required"
	}
	return fmt.Sprintf("payment required: %s", e.Reason)
}

// Code implements RPCError.
func (e PaymentRequiredError) Code() int { return ErrorCodePaymentRequired }

// Message implements RPCError.
func (e PaymentRequiredError) Message() string { return "Payment required" }

// UnauthorizedError indicates a missing or invalid bearer token. Surfaced as
// HTTP 401 before the task-handling core is entered.
type UnauthorizedError struct {
	Reason string
}

func (e UnauthorizedError) Error() string {
	if e.Reason == "" {
		return "unauthorized"
	}
	return fmt.Sprintf("unauthorized: %s", e.Reason)
}

// InvalidParamsError indicates the request parameters are malformed.
type InvalidParamsError struct {
	Detail string
}

func (e InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid params: %s", e.Detail)
}

// Code implements RPCError.
func (e InvalidParamsError) Code() int { return ErrorCodeInvalidParams }

// Message implements RPCError.
func (e InvalidParamsError) Message() string { return "Invalid params" }

// MethodNotFoundError indicates an unknown JSON-RPC method.
type MethodNotFoundError struct {
	Method string
}

func (e MethodNotFoundError) Error() string {
	return fmt.Sprintf("method not found: %s", e.Method)
}

// Code implements RPCError.
func (e MethodNotFoundError) Code() int { return ErrorCodeMethodNotFound }

// Message implements RPCError.
func (e MethodNotFoundError) Message() string { return "Method not found" }

// InternalError indicates a server-side consistency failure, such as a
// missing request context where one is structurally required.
type InternalError struct {
	Detail string
}

func (e InternalError) Error() string {
	return fmt.Sprintf("internal error: %s", e.Detail)
}

// Code implements RPCError.
func (e InternalError) Code() int { return ErrorCodeInternalError }

// Message implements RPCError.
func (e InternalError) Message() string { return "Internal error" }

var (
	_ RPCError = TaskNotFoundError{}
	_ RPCError = PaymentRequiredError{}
	_ RPCError = InvalidParamsError{}
	_ RPCError = MethodNotFoundError{}
	_ RPCError = InternalError{}
)
