// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	payments "github.com/nevermined-io/payments-go"
	"github.com/nevermined-io/payments-go/server"
	"github.com/nevermined-io/payments-go/server/event"
	"github.com/nevermined-io/payments-go/server/execution"
	"github.com/nevermined-io/payments-go/server/handler"
	"github.com/nevermined-io/payments-go/server/metrics"
	"github.com/nevermined-io/payments-go/server/payment"
	"github.com/nevermined-io/payments-go/server/push"
	"github.com/nevermined-io/payments-go/server/task"
)

// shutdownGrace is how long in-flight requests get to drain on shutdown.
const shutdownGrace = 10 * time.Second

// Daemon is a fully wired payment-metered agent server.
type Daemon struct {
	server *server.Server
}

// New wires a Daemon from configuration and the host's executor. A nil
// executor falls back to the built-in echo executor, which is only meant
// for development and smoke tests.
func New(cfg Config, executor execution.AgentExecutor) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger()
	extension := cfg.Extension()

	if executor == nil {
		executor = &EchoExecutor{Credits: cfg.Payment.Credits}
	}

	facilitator, err := payment.NewHTTPFacilitator(payment.HTTPFacilitatorConfig{
		BaseURL: cfg.Payment.FacilitatorURL,
	})
	if err != nil {
		return nil, fmt.Errorf("facilitator: %w", err)
	}
	validator, err := payment.NewValidator(facilitator, extension)
	if err != nil {
		return nil, fmt.Errorf("validator: %w", err)
	}

	store := task.NewInMemoryStore()
	pushConfigs := task.NewInMemoryPushConfigStore()
	contexts := payment.NewInMemoryContextStore()
	pending := payment.NewPendingStore()
	m := metrics.New()

	dispatcher := push.NewHTTPDispatcher(push.HTTPDispatcherConfig{Logger: logger})

	finalizer, err := payment.NewFinalizer(payment.FinalizerConfig{
		Contexts:    contexts,
		Facilitator: facilitator,
		Extension:   extension,
		Store:       store,
		PushConfigs: pushConfigs,
		Dispatcher:  dispatcher,
		Pending:     pending,
		Metrics:     m,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("finalizer: %w", err)
	}

	bridge, err := execution.NewBridge(execution.BridgeConfig{
		Executor: executor,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}

	requestHandler, err := handler.NewRequestHandler(handler.RequestHandlerConfig{
		Store:       store,
		Queues:      event.NewInMemoryManager(cfg.Server.QueueSize),
		Contexts:    contexts,
		Finalizer:   finalizer,
		Bridge:      bridge,
		PushConfigs: pushConfigs,
		Extension:   extension,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("request handler: %w", err)
	}

	boundary, err := handler.NewBoundary(handler.BoundaryConfig{
		Validator: validator,
		Contexts:  contexts,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("boundary: %w", err)
	}

	rpc, err := handler.NewJSONRPCHandler(handler.JSONRPCHandlerConfig{
		Handler:  requestHandler,
		Boundary: boundary,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("rpc handler: %w", err)
	}

	srv, err := server.New(server.Config{
		Addr:       cfg.Server.Addr,
		RPCHandler: rpc,
		AgentCard:  agentCard(cfg, extension),
		Metrics:    m,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	return &Daemon{server: srv}, nil
}

// Run serves until the context is canceled, then drains and stops.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(d.server.ListenAndServe)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return d.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func agentCard(cfg Config, extension *payments.PaymentExtension) *payments.AgentCard {
	return &payments.AgentCard{
		Name:        cfg.Agent.Name,
		Description: cfg.Agent.Description,
		URL:         cfg.Agent.URL,
		Version:     cfg.Agent.Version,
		Capabilities: payments.AgentCapabilities{
			Streaming:         true,
			PushNotifications: true,
			Extensions: []payments.AgentExtension{
				{URI: payments.PaymentExtensionURI, Params: extension},
			},
		},
	}
}
