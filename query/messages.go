package query

import (
	"strings"
)

const (
	TypeGetAuthorization   = "customerauth.query.authorization.get"
	TypeListAuthorizations = "customerauth.query.authorization.list"
	TypeResolveEndpoint    = "customerauth.query.endpoint.resolve"
)

type GetAuthorizationMessage struct {
	Domain string
}

func (GetAuthorizationMessage) Type() string { return TypeGetAuthorization }

func (m GetAuthorizationMessage) Validate() error {
	if strings.TrimSpace(m.Domain) == "" {
		return queryValidationError("domain", "merchant domain is required")
	}
	return nil
}

type ListAuthorizationsMessage struct{}

func (ListAuthorizationsMessage) Type() string { return TypeListAuthorizations }

func (ListAuthorizationsMessage) Validate() error { return nil }

type ResolveEndpointMessage struct {
	Domain string
}

func (ResolveEndpointMessage) Type() string { return TypeResolveEndpoint }

func (m ResolveEndpointMessage) Validate() error {
	if strings.TrimSpace(m.Domain) == "" {
		return queryValidationError("domain", "merchant domain is required")
	}
	return nil
}
