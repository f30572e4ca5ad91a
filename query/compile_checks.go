package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-customer-auth/core"
)

var (
	_ gocmd.Querier[GetAuthorizationMessage, core.Authorization]     = (*GetAuthorizationQuery)(nil)
	_ gocmd.Querier[ListAuthorizationsMessage, []core.Authorization] = (*ListAuthorizationsQuery)(nil)
	_ gocmd.Querier[ResolveEndpointMessage, core.ResolvedEndpoint]   = (*ResolveEndpointQuery)(nil)
)
