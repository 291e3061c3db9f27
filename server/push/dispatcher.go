// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

// Package push delivers terminal-state webhook notifications to
// caller-registered endpoints.
package push

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"

	payments "github.com/nevermined-io/payments-go"
)

// DeliveryError indicates the webhook endpoint refused or failed the
// notification. Finalization treats delivery errors as non-fatal.
type DeliveryError struct {
	TaskID     string
	URL        string
	StatusCode int
	Err        error
}

func (e DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("webhook delivery for task %s to %s failed: %v", e.TaskID, e.URL, e.Err)
	}
	return fmt.Sprintf("webhook delivery for task %s to %s failed with status %d", e.TaskID, e.URL, e.StatusCode)
}

// Unwrap returns the underlying error.
func (e DeliveryError) Unwrap() error { return e.Err }

// Dispatcher sends webhook notifications.
type Dispatcher interface {
	// Notify delivers a terminal-state notification for a task to the
	// configured endpoint, authenticated per the config's scheme.
	Notify(ctx context.Context, taskID string, state payments.TaskState, config *payments.PushNotificationConfig, payload any) error
}

// HTTPDispatcher is the HTTP implementation of Dispatcher.
type HTTPDispatcher struct {
	client *http.Client
	logger *slog.Logger
}

var _ Dispatcher = (*HTTPDispatcher)(nil)

// HTTPDispatcherConfig holds configuration for HTTPDispatcher.
type HTTPDispatcherConfig struct {
	Client  *http.Client
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewHTTPDispatcher creates an HTTP webhook dispatcher.
func NewHTTPDispatcher(config HTTPDispatcherConfig) *HTTPDispatcher {
	client := config.Client
	if client == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDispatcher{client: client, logger: logger}
}

// notification is the webhook request body.
type notification struct {
	TaskID  string             `json:"taskId"`
	State   payments.TaskState `json:"state"`
	Payload any                `json:"payload,omitzero"`
}

// Notify delivers a terminal-state notification for a task.
func (d *HTTPDispatcher) Notify(ctx context.Context, taskID string, state payments.TaskState, config *payments.PushNotificationConfig, payload any) error {
	if config == nil {
		return fmt.Errorf("push notification config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid push notification config: %w", err)
	}

	body, err := json.Marshal(notification{TaskID: taskID, State: state, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.URL, bytes.NewReader(body))
	if err != nil {
		return DeliveryError{TaskID: taskID, URL: config.URL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	if err := applyAuthentication(req, config.Authentication); err != nil {
		return DeliveryError{TaskID: taskID, URL: config.URL, Err: err}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return DeliveryError{TaskID: taskID, URL: config.URL, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return DeliveryError{TaskID: taskID, URL: config.URL, StatusCode: resp.StatusCode}
	}

	d.logger.Debug("webhook delivered", "task_id", taskID, "state", state, "url", config.URL)
	return nil
}

func applyAuthentication(req *http.Request, auth *payments.PushAuthentication) error {
	if auth == nil {
		return nil
	}
	switch auth.Scheme {
	case payments.PushAuthNone, "":
		return nil
	case payments.PushAuthBasic:
		credentials := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
		req.Header.Set("Authorization", "Basic "+credentials)
		return nil
	case payments.PushAuthBearer:
		if auth.Token == "" {
			return fmt.Errorf("bearer scheme requires a token")
		}
		req.Header.Set("Authorization", "Bearer "+auth.Token)
		return nil
	case payments.PushAuthCustom:
		for name, value := range auth.Headers {
			req.Header.Set(name, value)
		}
		return nil
	default:
		return fmt.Errorf("unsupported push authentication scheme: %q", auth.Scheme)
	}
}
