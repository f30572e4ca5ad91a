// Package gocommand bridges the customer-auth command/query handlers to the
// go-command registry and dispatcher surface used by host applications.
package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	customerauth "github.com/goliatone/go-customer-auth"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// SubscribeFacade registers every facade command and query handler with the
// registry and subscribes them on the dispatcher. On any failure the
// subscriptions made so far are released.
func SubscribeFacade(
	adapter *RegistryAdapter,
	facade *customerauth.Facade,
	runnerOpts ...runner.Option,
) (subscriptions []commanddispatcher.Subscription, err error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if facade == nil {
		return nil, fmt.Errorf("gocommand: facade is required")
	}

	defer func() {
		if err == nil {
			return
		}
		for _, subscription := range subscriptions {
			if subscription != nil {
				subscription.Unsubscribe()
			}
		}
		subscriptions = nil
	}()

	commands := facade.Commands()
	queries := facade.Queries()

	handlers := []struct {
		handler   any
		subscribe func() commanddispatcher.Subscription
	}{
		{commands.Authorize, func() commanddispatcher.Subscription {
			return SubscribeCommand(commands.Authorize, runnerOpts...)
		}},
		{commands.EnsureAccessToken, func() commanddispatcher.Subscription {
			return SubscribeCommand(commands.EnsureAccessToken, runnerOpts...)
		}},
		{commands.Revoke, func() commanddispatcher.Subscription {
			return SubscribeCommand(commands.Revoke, runnerOpts...)
		}},
		{queries.GetAuthorization, func() commanddispatcher.Subscription {
			return SubscribeQuery(queries.GetAuthorization, runnerOpts...)
		}},
		{queries.ListAuthorizations, func() commanddispatcher.Subscription {
			return SubscribeQuery(queries.ListAuthorizations, runnerOpts...)
		}},
		{queries.ResolveEndpoint, func() commanddispatcher.Subscription {
			return SubscribeQuery(queries.ResolveEndpoint, runnerOpts...)
		}},
	}

	for _, entry := range handlers {
		subscriptions = append(subscriptions, entry.subscribe())
		if registerErr := adapter.RegisterCommand(entry.handler); registerErr != nil {
			err = registerErr
			return subscriptions, err
		}
	}

	return subscriptions, nil
}
