package query

import (
	"context"

	"github.com/goliatone/go-customer-auth/core"
)

type AuthorizationReader interface {
	GetAuthorization(ctx context.Context, domain string) (core.Authorization, error)
	ListAuthorizations(ctx context.Context) ([]core.Authorization, error)
}

type EndpointReader interface {
	ResolveEndpoint(ctx context.Context, domain string) (core.ResolvedEndpoint, error)
}

type GetAuthorizationQuery struct {
	reader AuthorizationReader
}

func NewGetAuthorizationQuery(reader AuthorizationReader) *GetAuthorizationQuery {
	return &GetAuthorizationQuery{reader: reader}
}

func (q *GetAuthorizationQuery) Query(ctx context.Context, msg GetAuthorizationMessage) (core.Authorization, error) {
	if q == nil || q.reader == nil {
		return core.Authorization{}, queryDependencyError("query: authorization reader is required")
	}
	return q.reader.GetAuthorization(ctx, msg.Domain)
}

type ListAuthorizationsQuery struct {
	reader AuthorizationReader
}

func NewListAuthorizationsQuery(reader AuthorizationReader) *ListAuthorizationsQuery {
	return &ListAuthorizationsQuery{reader: reader}
}

func (q *ListAuthorizationsQuery) Query(
	ctx context.Context,
	msg ListAuthorizationsMessage,
) ([]core.Authorization, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: authorization reader is required")
	}
	return q.reader.ListAuthorizations(ctx)
}

type ResolveEndpointQuery struct {
	reader EndpointReader
}

func NewResolveEndpointQuery(reader EndpointReader) *ResolveEndpointQuery {
	return &ResolveEndpointQuery{reader: reader}
}

func (q *ResolveEndpointQuery) Query(ctx context.Context, msg ResolveEndpointMessage) (core.ResolvedEndpoint, error) {
	if q == nil || q.reader == nil {
		return core.ResolvedEndpoint{}, queryDependencyError("query: endpoint reader is required")
	}
	return q.reader.ResolveEndpoint(ctx, msg.Domain)
}
