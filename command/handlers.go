package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-customer-auth/core"
)

type MutatingService interface {
	Authorize(ctx context.Context, req core.AuthorizeRequest) (core.AuthorizeResult, error)
	GetValidAccessToken(ctx context.Context, domain string) (string, error)
	Revoke(ctx context.Context, domain string) error
}

type AuthorizeCommand struct {
	service MutatingService
}

func NewAuthorizeCommand(service MutatingService) *AuthorizeCommand {
	return &AuthorizeCommand{service: service}
}

func (c *AuthorizeCommand) Execute(ctx context.Context, msg AuthorizeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorize service is required")
	}
	out, err := c.service.Authorize(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type EnsureAccessTokenCommand struct {
	service MutatingService
}

func NewEnsureAccessTokenCommand(service MutatingService) *EnsureAccessTokenCommand {
	return &EnsureAccessTokenCommand{service: service}
}

func (c *EnsureAccessTokenCommand) Execute(ctx context.Context, msg EnsureAccessTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: token service is required")
	}
	token, err := c.service.GetValidAccessToken(ctx, msg.Domain)
	if err != nil {
		return err
	}
	storeResult(ctx, token)
	return nil
}

type RevokeCommand struct {
	service MutatingService
}

func NewRevokeCommand(service MutatingService) *RevokeCommand {
	return &RevokeCommand{service: service}
}

func (c *RevokeCommand) Execute(ctx context.Context, msg RevokeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: revoke service is required")
	}
	return c.service.Revoke(ctx, msg.Domain)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
