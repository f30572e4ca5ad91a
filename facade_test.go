package customerauth

import (
	"context"
	"testing"

	authcommand "github.com/goliatone/go-customer-auth/command"
	"github.com/goliatone/go-customer-auth/core"
	authquery "github.com/goliatone/go-customer-auth/query"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	svc := &stubFacadeService{}

	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.Authorize == nil || commands.EnsureAccessToken == nil || commands.Revoke == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.GetAuthorization == nil || queries.ListAuthorizations == nil || queries.ResolveEndpoint == nil {
		t.Fatalf("expected query handlers to be wired")
	}
	if facade.Service() != svc {
		t.Fatalf("expected facade to expose the wrapped service")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{}

	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if err := facade.Commands().Revoke.Execute(context.Background(), authcommand.RevokeMessage{
		Domain: "merchant.example",
	}); err != nil {
		t.Fatalf("execute revoke command: %v", err)
	}
	if svc.lastRevokedDomain != "merchant.example" {
		t.Fatalf("unexpected revoke delegation payload %q", svc.lastRevokedDomain)
	}

	record, err := facade.Queries().GetAuthorization.Query(context.Background(), authquery.GetAuthorizationMessage{
		Domain: "merchant.example",
	})
	if err != nil {
		t.Fatalf("query authorization: %v", err)
	}
	if record.Domain != "merchant.example" || record.CustomerEmail != "shopper@example.com" {
		t.Fatalf("unexpected authorization query result: %#v", record)
	}

	resolved, err := facade.Queries().ResolveEndpoint.Query(context.Background(), authquery.ResolveEndpointMessage{
		Domain: "merchant.example",
	})
	if err != nil {
		t.Fatalf("query resolve endpoint: %v", err)
	}
	if resolved.Endpoint != "https://merchant.example/scp" {
		t.Fatalf("unexpected endpoint query result: %#v", resolved)
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

type stubFacadeService struct {
	lastRevokedDomain string
}

func (s *stubFacadeService) Authorize(_ context.Context, req core.AuthorizeRequest) (core.AuthorizeResult, error) {
	return core.AuthorizeResult{
		Authorization: core.Authorization{Domain: req.Domain, CustomerEmail: req.Email},
	}, nil
}

func (s *stubFacadeService) GetValidAccessToken(context.Context, string) (string, error) {
	return "access-token", nil
}

func (s *stubFacadeService) Revoke(_ context.Context, domain string) error {
	s.lastRevokedDomain = domain
	return nil
}

func (s *stubFacadeService) GetAuthorization(_ context.Context, domain string) (core.Authorization, error) {
	return core.Authorization{Domain: domain, CustomerEmail: "shopper@example.com"}, nil
}

func (s *stubFacadeService) ListAuthorizations(context.Context) ([]core.Authorization, error) {
	return []core.Authorization{{Domain: "merchant.example"}}, nil
}

func (s *stubFacadeService) ResolveEndpoint(_ context.Context, domain string) (core.ResolvedEndpoint, error) {
	return core.ResolvedEndpoint{
		Domain:   domain,
		Endpoint: "https://merchant.example/scp",
		Source:   core.EndpointSourceCache,
	}, nil
}

var _ CommandQueryService = (*stubFacadeService)(nil)
