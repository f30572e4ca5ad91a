package authflow

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-customer-auth/core"
)

type flowServer struct {
	mu sync.Mutex

	pollStatuses []pollResponse
	pollIndex    int

	initPayload   initRequest
	exchangeForm  map[string]string
	pollCalls     int
	exchangeCalls int

	tokenReply  tokenResponse
	tokenStatus int
}

func newFlowServer(statuses ...pollResponse) *flowServer {
	return &flowServer{
		pollStatuses: statuses,
		tokenReply: tokenResponse{
			AccessToken:  "access-token",
			RefreshToken: "refresh-token",
			TokenType:    "Bearer",
			ExpiresIn:    3600,
			Scope:        "orders:read",
			CustomerID:   "cust_1",
			Email:        "shopper@example.com",
		},
		tokenStatus: http.StatusOK,
	}
}

func (s *flowServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(authorizeInitPath, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&s.initPayload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(initResponse{AuthRequestID: "req_1", EmailSent: true, ExpiresIn: 300})
	})
	mux.HandleFunc(authorizePollPath, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.pollCalls++
		status := pollResponse{Status: pollStatusPending}
		if s.pollIndex < len(s.pollStatuses) {
			status = s.pollStatuses[s.pollIndex]
			s.pollIndex++
		}
		json.NewEncoder(w).Encode(status)
	})
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.exchangeCalls++
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.exchangeForm = map[string]string{}
		for key := range r.PostForm {
			s.exchangeForm[key] = r.PostForm.Get(key)
		}
		if s.tokenStatus != http.StatusOK {
			http.Error(w, "nope", s.tokenStatus)
			return
		}
		json.NewEncoder(w).Encode(s.tokenReply)
	})
	mux.HandleFunc(revokePath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func testEngine(cfg core.FlowConfig, opts ...Option) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	return New(cfg, "customer-auth-agent", "Customer Auth Agent", opts...)
}

func TestAuthorizeWaitsThroughPendingAndExchangesCode(t *testing.T) {
	server := newFlowServer(
		pollResponse{Status: pollStatusPending},
		pollResponse{Status: pollStatusPending},
		pollResponse{Status: pollStatusAuthorized, Code: "code-xyz"},
	)
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	engine := testEngine(core.FlowConfig{MaxPollAttempts: 10})
	grant, err := engine.Authorize(context.Background(), core.FlowRequest{
		Domain:   "shop.example.com",
		Endpoint: ts.URL,
		Email:    "shopper@example.com",
		Scopes:   []string{"orders:read"},
	})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if grant.AccessToken != "access-token" || grant.RefreshToken != "refresh-token" {
		t.Fatalf("unexpected grant %+v", grant)
	}
	if server.pollCalls != 3 {
		t.Fatalf("expected 3 polls, got %d", server.pollCalls)
	}
	if server.exchangeForm["grant_type"] != "authorization_code" {
		t.Fatalf("unexpected grant_type %q", server.exchangeForm["grant_type"])
	}
	if server.exchangeForm["code"] != "code-xyz" {
		t.Fatalf("unexpected code %q", server.exchangeForm["code"])
	}

	// The exchanged verifier must hash to the challenge sent at init.
	sum := sha256.Sum256([]byte(server.exchangeForm["code_verifier"]))
	if base64.RawURLEncoding.EncodeToString(sum[:]) != server.initPayload.CodeChallenge {
		t.Fatalf("verifier does not match challenge")
	}
	if server.initPayload.CodeChallengeMethod != "S256" {
		t.Fatalf("unexpected challenge method %q", server.initPayload.CodeChallengeMethod)
	}
	if server.initPayload.RedirectURI != redirectMarker {
		t.Fatalf("unexpected redirect uri %q", server.initPayload.RedirectURI)
	}
	if server.initPayload.State == "" {
		t.Fatalf("expected a state token")
	}
}

func TestAuthorizeDenied(t *testing.T) {
	server := newFlowServer(pollResponse{Status: pollStatusDenied, Reason: "customer declined"})
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	engine := testEngine(core.FlowConfig{MaxPollAttempts: 5})
	_, err := engine.Authorize(context.Background(), core.FlowRequest{
		Domain:   "shop.example.com",
		Endpoint: ts.URL,
		Email:    "shopper@example.com",
	})
	if err == nil {
		t.Fatalf("expected denial")
	}
	if !core.HasErrorCode(err, core.ErrorCodeFlowDenied) {
		t.Fatalf("expected %s, got %v", core.ErrorCodeFlowDenied, err)
	}
	if server.exchangeCalls != 0 {
		t.Fatalf("denied flow must not exchange, got %d calls", server.exchangeCalls)
	}
}

func TestAuthorizeExpired(t *testing.T) {
	server := newFlowServer(
		pollResponse{Status: pollStatusPending},
		pollResponse{Status: pollStatusExpired},
	)
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	engine := testEngine(core.FlowConfig{MaxPollAttempts: 5})
	_, err := engine.Authorize(context.Background(), core.FlowRequest{
		Domain:   "shop.example.com",
		Endpoint: ts.URL,
		Email:    "shopper@example.com",
	})
	if !core.HasErrorCode(err, core.ErrorCodeFlowExpired) {
		t.Fatalf("expected %s, got %v", core.ErrorCodeFlowExpired, err)
	}
}

func TestAuthorizeTimesOutAfterPollBudget(t *testing.T) {
	server := newFlowServer() // always pending
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	engine := testEngine(core.FlowConfig{MaxPollAttempts: 3})
	_, err := engine.Authorize(context.Background(), core.FlowRequest{
		Domain:   "shop.example.com",
		Endpoint: ts.URL,
		Email:    "shopper@example.com",
	})
	if !core.HasErrorCode(err, core.ErrorCodeFlowTimeout) {
		t.Fatalf("expected %s, got %v", core.ErrorCodeFlowTimeout, err)
	}
	if server.pollCalls != 3 {
		t.Fatalf("expected 3 polls, got %d", server.pollCalls)
	}
}

func TestAuthorizeTimeoutSkipsTrailingWait(t *testing.T) {
	server := newFlowServer() // always pending
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	// With one attempt and an hour-long interval the call only terminates
	// promptly if no wait runs after the final poll.
	engine := testEngine(core.FlowConfig{MaxPollAttempts: 1, PollInterval: time.Hour})
	done := make(chan error, 1)
	go func() {
		_, err := engine.Authorize(context.Background(), core.FlowRequest{
			Domain:   "shop.example.com",
			Endpoint: ts.URL,
			Email:    "shopper@example.com",
		})
		done <- err
	}()

	select {
	case err := <-done:
		if !core.HasErrorCode(err, core.ErrorCodeFlowTimeout) {
			t.Fatalf("expected %s, got %v", core.ErrorCodeFlowTimeout, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout after the final poll should return immediately")
	}
	if server.pollCalls != 1 {
		t.Fatalf("expected 1 poll, got %d", server.pollCalls)
	}
}

func TestAuthorizeFlowTransportFailuresCarryFlowCode(t *testing.T) {
	t.Run("init failure", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		engine := testEngine(core.FlowConfig{MaxPollAttempts: 2})
		_, err := engine.Authorize(context.Background(), core.FlowRequest{
			Domain:   "shop.example.com",
			Endpoint: ts.URL,
			Email:    "shopper@example.com",
		})
		if !core.HasErrorCode(err, core.ErrorCodeFlowTransport) {
			t.Fatalf("expected %s, got %v", core.ErrorCodeFlowTransport, err)
		}
	})

	t.Run("poll failure", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc(authorizeInitPath, func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(initResponse{AuthRequestID: "req_1", EmailSent: true, ExpiresIn: 300})
		})
		mux.HandleFunc(authorizePollPath, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		engine := testEngine(core.FlowConfig{MaxPollAttempts: 2})
		_, err := engine.Authorize(context.Background(), core.FlowRequest{
			Domain:   "shop.example.com",
			Endpoint: ts.URL,
			Email:    "shopper@example.com",
		})
		if !core.HasErrorCode(err, core.ErrorCodeFlowTransport) {
			t.Fatalf("expected %s, got %v", core.ErrorCodeFlowTransport, err)
		}
	})
}

func TestAuthorizeHonorsContextCancellation(t *testing.T) {
	server := newFlowServer() // always pending
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	engine := New(core.FlowConfig{PollInterval: time.Hour, MaxPollAttempts: 100},
		"customer-auth-agent", "Customer Auth Agent")

	done := make(chan error, 1)
	go func() {
		_, err := engine.Authorize(ctx, core.FlowRequest{
			Domain:   "shop.example.com",
			Endpoint: ts.URL,
			Email:    "shopper@example.com",
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected cancellation error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Authorize did not observe cancellation")
	}
}

func TestAuthorizeRejectsUnsupportedScopesBeforeInit(t *testing.T) {
	engine := testEngine(core.FlowConfig{MaxPollAttempts: 5},
		WithHTTPClient(&http.Client{Transport: failingTransport{t}}))

	_, err := engine.Authorize(context.Background(), core.FlowRequest{
		Domain:   "shop.example.com",
		Endpoint: "https://api.shop.example.com/scp",
		Email:    "shopper@example.com",
		Scopes:   []string{"orders:read", "payments:write"},
		Capabilities: &core.CapabilityDescriptor{
			ScopesSupported: []string{"orders:read", "profile:read"},
		},
	})
	if err == nil {
		t.Fatalf("expected unsupported scope error")
	}
	if !core.HasErrorCode(err, core.ErrorCodeUnsupportedScope) {
		t.Fatalf("expected %s, got %v", core.ErrorCodeUnsupportedScope, err)
	}
}

type failingTransport struct{ t *testing.T }

func (f failingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.t.Fatalf("unexpected http request to %s", req.URL)
	return nil, fmt.Errorf("unexpected request")
}

func TestRefreshPostsRefreshGrant(t *testing.T) {
	server := newFlowServer()
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	engine := testEngine(core.FlowConfig{})
	grant, err := engine.Refresh(context.Background(), ts.URL, "refresh-old")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if grant.AccessToken != "access-token" {
		t.Fatalf("unexpected access token %q", grant.AccessToken)
	}
	if server.exchangeForm["grant_type"] != "refresh_token" {
		t.Fatalf("unexpected grant_type %q", server.exchangeForm["grant_type"])
	}
	if server.exchangeForm["refresh_token"] != "refresh-old" {
		t.Fatalf("unexpected refresh_token %q", server.exchangeForm["refresh_token"])
	}
}

func TestRefreshFailureIsFatal(t *testing.T) {
	server := newFlowServer()
	server.tokenStatus = http.StatusBadRequest
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	engine := testEngine(core.FlowConfig{})
	_, err := engine.Refresh(context.Background(), ts.URL, "refresh-revoked")
	if err == nil {
		t.Fatalf("expected refresh failure")
	}
	if !core.HasErrorCode(err, core.ErrorCodeRefreshFailed) {
		t.Fatalf("expected %s, got %v", core.ErrorCodeRefreshFailed, err)
	}
	if server.exchangeCalls != 1 {
		t.Fatalf("expected a single attempt, got %d", server.exchangeCalls)
	}
}

func TestRevokeReportsNonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer ts.Close()

	engine := testEngine(core.FlowConfig{})
	if err := engine.Revoke(context.Background(), ts.URL, "token"); err == nil {
		t.Fatalf("expected revoke error")
	}
}

func TestChallengeFromVerifierVector(t *testing.T) {
	// RFC 7636 appendix B test vector.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got := challengeFromVerifier(verifier); got != want {
		t.Fatalf("challengeFromVerifier = %q, want %q", got, want)
	}
}
