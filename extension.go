// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package payments

import "fmt"

// PaymentType identifies the pricing scheme declared by an agent.
type PaymentType string

// Payment types.
const (
	PaymentTypeFixed   PaymentType = "fixed"
	PaymentTypeDynamic PaymentType = "dynamic"
)

// PaymentExtensionURI identifies the payment extension in an agent card's
// capability list.
const PaymentExtensionURI = "urn:nevermined:payment"

// RedemptionConfig selects how credits are settled for an agent's tasks.
// It is resolved from server-side configuration only, never from caller
// input. Batch and margin are independent axes.
type RedemptionConfig struct {
	UseBatch      bool    `json:"useBatch"`
	UseMargin     bool    `json:"useMargin"`
	MarginPercent float64 `json:"marginPercent,omitzero"`
}

// PaymentExtension is the descriptor metadata attached to an agent card,
// declaring its payment plan and redemption configuration.
type PaymentExtension struct {
	AgentID          string            `json:"agentId"`
	PlanID           string            `json:"planId"`
	PaymentType      PaymentType       `json:"paymentType"`
	Credits          uint64            `json:"credits"`
	RedemptionConfig *RedemptionConfig `json:"redemptionConfig,omitzero"`
}

// Validate ensures the PaymentExtension is valid.
func (p *PaymentExtension) Validate() error {
	if p.AgentID == "" {
		return fmt.Errorf("payment extension agent ID cannot be empty")
	}
	if p.PlanID == "" {
		return fmt.Errorf("payment extension plan ID cannot be empty")
	}
	return nil
}

// AgentExtension is a single capability extension entry on an agent card.
type AgentExtension struct {
	URI    string `json:"uri"`
	Params any    `json:"params,omitzero"`
}

// AgentCapabilities describes the optional features an agent supports.
type AgentCapabilities struct {
	Streaming              bool             `json:"streaming"`
	PushNotifications      bool             `json:"pushNotifications"`
	StateTransitionHistory bool             `json:"stateTransitionHistory,omitzero"`
	Extensions             []AgentExtension `json:"extensions,omitzero"`
}

// AgentCard is the public descriptor of an agent, served at the well-known
// discovery path.
type AgentCard struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitzero"`
	URL          string            `json:"url"`
	Version      string            `json:"version"`
	Capabilities AgentCapabilities `json:"capabilities"`
}

// PaymentExtensionFromCard returns the payment extension declared on the
// card, or nil when the agent declares none.
func PaymentExtensionFromCard(card *AgentCard) *PaymentExtension {
	if card == nil {
		return nil
	}
	for _, ext := range card.Capabilities.Extensions {
		if ext.URI != PaymentExtensionURI {
			continue
		}
		if p, ok := ext.Params.(*PaymentExtension); ok {
			return p
		}
	}
	return nil
}

// PushAuthScheme selects the authentication scheme for webhook delivery.
type PushAuthScheme string

// Webhook authentication schemes.
const (
	PushAuthNone   PushAuthScheme = "none"
	PushAuthBasic  PushAuthScheme = "basic"
	PushAuthBearer PushAuthScheme = "bearer"
	PushAuthCustom PushAuthScheme = "custom"
)

// PushAuthentication declares how webhook requests authenticate to the
// caller-registered endpoint.
type PushAuthentication struct {
	Scheme   PushAuthScheme    `json:"scheme"`
	Username string            `json:"username,omitzero"`
	Password string            `json:"password,omitzero"`
	Token    string            `json:"token,omitzero"`
	Headers  map[string]string `json:"headers,omitzero"`
}

// PushNotificationConfig is a caller-registered target for terminal-state
// webhook notifications.
type PushNotificationConfig struct {
	URL            string              `json:"url"`
	Authentication *PushAuthentication `json:"authentication,omitzero"`
}

// Validate ensures the PushNotificationConfig is valid.
func (c *PushNotificationConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("push notification URL cannot be empty")
	}
	if c.Authentication != nil {
		switch c.Authentication.Scheme {
		case PushAuthNone, PushAuthBasic, PushAuthBearer, PushAuthCustom:
		default:
			return fmt.Errorf("invalid push authentication scheme: %q", c.Authentication.Scheme)
		}
	}
	return nil
}
