package command

import (
	"strings"

	"github.com/goliatone/go-customer-auth/core"
)

const (
	TypeAuthorize         = "customerauth.command.authorize"
	TypeEnsureAccessToken = "customerauth.command.token.ensure"
	TypeRevoke            = "customerauth.command.revoke"
)

type AuthorizeMessage struct {
	Request core.AuthorizeRequest
}

func (AuthorizeMessage) Type() string { return TypeAuthorize }

func (m AuthorizeMessage) Validate() error {
	if strings.TrimSpace(m.Request.Domain) == "" {
		return commandValidationError("domain", "merchant domain is required")
	}
	if strings.TrimSpace(m.Request.Email) == "" {
		return commandValidationError("email", "customer email is required")
	}
	return nil
}

// EnsureAccessTokenMessage requests a usable access token for a domain,
// refreshing the stored grant when it is close to expiry.
type EnsureAccessTokenMessage struct {
	Domain string
}

func (EnsureAccessTokenMessage) Type() string { return TypeEnsureAccessToken }

func (m EnsureAccessTokenMessage) Validate() error {
	if strings.TrimSpace(m.Domain) == "" {
		return commandValidationError("domain", "merchant domain is required")
	}
	return nil
}

type RevokeMessage struct {
	Domain string
}

func (RevokeMessage) Type() string { return TypeRevoke }

func (m RevokeMessage) Validate() error {
	if strings.TrimSpace(m.Domain) == "" {
		return commandValidationError("domain", "merchant domain is required")
	}
	return nil
}
