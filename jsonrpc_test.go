// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package payments

import (
	"fmt"
	"testing"
)

func TestNewErrorResponse(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err      error
		wantCode int
	}{
		"task not found": {
			err:      TaskNotFoundError{TaskID: "t1"},
			wantCode: ErrorCodeTaskNotFound,
		},
		"payment required": {
			err:      PaymentRequiredError{Reason: "no balance"},
			wantCode: ErrorCodePaymentRequired,
		},
		"invalid params": {
			err:      InvalidParamsError{Detail: "message is required"},
			wantCode: ErrorCodeInvalidParams,
		},
		"method not found": {
			err:      MethodNotFoundError{Method: "tasks/unknown"},
			wantCode: ErrorCodeMethodNotFound,
		},
		"wrapped rpc error": {
			err:      fmt.Errorf("handling request: %w", TaskNotFoundError{TaskID: "t1"}),
			wantCode: ErrorCodeTaskNotFound,
		},
		"plain error falls back to internal": {
			err:      fmt.Errorf("boom"),
			wantCode: ErrorCodeInternalError,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			resp := NewErrorResponse(nil, tt.err)
			if resp.Error == nil {
				t.Fatal("response error should be set")
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("error code = %d, want %d", resp.Error.Code, tt.wantCode)
			}
			if resp.JSONRPC != Version {
				t.Errorf("jsonrpc = %q, want %q", resp.JSONRPC, Version)
			}
		})
	}
}

func TestMessageSendParams_Blocking(t *testing.T) {
	t.Parallel()

	blocking := true
	nonBlocking := false

	tests := map[string]struct {
		params MessageSendParams
		want   bool
	}{
		"no configuration defaults to blocking": {
			params: MessageSendParams{},
			want:   true,
		},
		"configuration with blocking omitted defaults to blocking": {
			params: MessageSendParams{
				Configuration: &MessageSendConfiguration{
					PushNotificationConfig: &PushNotificationConfig{URL: "https://example.com/hook"},
				},
			},
			want: true,
		},
		"explicit blocking": {
			params: MessageSendParams{
				Configuration: &MessageSendConfiguration{Blocking: &blocking},
			},
			want: true,
		},
		"explicit non-blocking": {
			params: MessageSendParams{
				Configuration: &MessageSendConfiguration{Blocking: &nonBlocking},
			},
			want: false,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := tt.params.Blocking(); got != tt.want {
				t.Errorf("Blocking() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequest_Validate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		req     Request
		wantErr bool
	}{
		"valid": {
			req: Request{JSONRPC: Version, Method: MethodMessageSend},
		},
		"error: wrong version": {
			req:     Request{JSONRPC: "1.0", Method: MethodMessageSend},
			wantErr: true,
		},
		"error: missing method": {
			req:     Request{JSONRPC: Version},
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetPushConfigParams_Validate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		params  SetPushConfigParams
		wantErr bool
	}{
		"valid": {
			params: SetPushConfigParams{
				TaskID:                 "t1",
				PushNotificationConfig: &PushNotificationConfig{URL: "https://example.com/hook"},
			},
		},
		"error: missing task id": {
			params: SetPushConfigParams{
				PushNotificationConfig: &PushNotificationConfig{URL: "https://example.com/hook"},
			},
			wantErr: true,
		},
		"error: missing config": {
			params:  SetPushConfigParams{TaskID: "t1"},
			wantErr: true,
		},
		"error: config without url": {
			params: SetPushConfigParams{
				TaskID:                 "t1",
				PushNotificationConfig: &PushNotificationConfig{},
			},
			wantErr: true,
		},
		"error: bad auth scheme": {
			params: SetPushConfigParams{
				TaskID: "t1",
				PushNotificationConfig: &PushNotificationConfig{
					URL:            "https://example.com/hook",
					Authentication: &PushAuthentication{Scheme: "digest"},
				},
			},
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
