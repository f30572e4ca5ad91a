package customerauth

import (
	"fmt"

	authcommand "github.com/goliatone/go-customer-auth/command"
	"github.com/goliatone/go-customer-auth/core"
	authquery "github.com/goliatone/go-customer-auth/query"
)

type CommandQueryService interface {
	authcommand.MutatingService
	authquery.AuthorizationReader
	authquery.EndpointReader
}

type Commands struct {
	Authorize         *authcommand.AuthorizeCommand
	EnsureAccessToken *authcommand.EnsureAccessTokenCommand
	Revoke            *authcommand.RevokeCommand
}

type Queries struct {
	GetAuthorization   *authquery.GetAuthorizationQuery
	ListAuthorizations *authquery.ListAuthorizationsQuery
	ResolveEndpoint    *authquery.ResolveEndpointQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("customerauth: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Authorize:         authcommand.NewAuthorizeCommand(service),
		EnsureAccessToken: authcommand.NewEnsureAccessTokenCommand(service),
		Revoke:            authcommand.NewRevokeCommand(service),
	}
	facade.queries = Queries{
		GetAuthorization:   authquery.NewGetAuthorizationQuery(service),
		ListAuthorizations: authquery.NewListAuthorizationsQuery(service),
		ResolveEndpoint:    authquery.NewResolveEndpointQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*core.Service)(nil)
