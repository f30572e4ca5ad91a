// Package authflow drives the out-of-band authorization flow against a
// resolved merchant endpoint: PKCE challenge, email-approval polling, code
// exchange, refresh, and revocation. No browser redirect exists; the
// customer approves from the email the merchant sends.
package authflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-customer-auth/core"
)

// The flow has no browsable redirect target; the marker tells the merchant
// the code comes back through polling.
const redirectMarker = "urn:ietf:wg:oauth:2.0:oob"

const (
	authorizeInitPath = "/authorize/init"
	authorizePollPath = "/authorize/poll"
	tokenPath         = "/token"
	revokePath        = "/revoke"

	pollStatusPending    = "pending"
	pollStatusAuthorized = "authorized"
	pollStatusDenied     = "denied"
	pollStatusExpired    = "expired"

	defaultPollRequestTimeout = 5 * time.Second
	maxResponseBodyBytes      = 256 * 1024
)

type Option func(*Engine)

type Engine struct {
	cfg        core.FlowConfig
	clientID   string
	clientName string
	httpClient *http.Client
	logger     core.Logger
}

func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) {
		if client != nil {
			e.httpClient = client
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func New(cfg core.FlowConfig, clientID, clientName string, opts ...Option) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = core.DefaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = core.DefaultMaxPollAttempts
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = core.DefaultRequestTimeout
	}
	engine := &Engine{
		cfg:        cfg,
		clientID:   strings.TrimSpace(clientID),
		clientName: strings.TrimSpace(clientName),
		httpClient: &http.Client{},
		logger:     glog.Ensure(nil),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(engine)
	}
	return engine
}

type initRequest struct {
	Email               string   `json:"email"`
	ClientID            string   `json:"client_id"`
	ClientName          string   `json:"client_name,omitempty"`
	Domain              string   `json:"domain"`
	Scopes              []string `json:"scopes"`
	CodeChallenge       string   `json:"code_challenge"`
	CodeChallengeMethod string   `json:"code_challenge_method"`
	RedirectURI         string   `json:"redirect_uri"`
	State               string   `json:"state"`
}

type initResponse struct {
	AuthRequestID string `json:"auth_request_id"`
	EmailSent     bool   `json:"email_sent"`
	ExpiresIn     int64  `json:"expires_in"`
	PollInterval  int64  `json:"poll_interval"`
}

type pollResponse struct {
	Status string `json:"status"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	CustomerID   string `json:"customer_id"`
	Email        string `json:"email"`
}

// Authorize runs the whole flow: scope validation against the capability
// descriptor when one exists, init, the poll loop, and the code exchange.
// It blocks until the customer acts, the merchant gives a terminal answer,
// the poll budget runs out, or ctx is canceled.
func (e *Engine) Authorize(ctx context.Context, req core.FlowRequest) (core.TokenGrant, error) {
	if e == nil {
		return core.TokenGrant{}, fmt.Errorf("authflow: engine is not configured")
	}
	endpoint := strings.TrimRight(strings.TrimSpace(req.Endpoint), "/")
	if endpoint == "" {
		return core.TokenGrant{}, fmt.Errorf("authflow: endpoint is required")
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return core.TokenGrant{}, fmt.Errorf("authflow: customer email is required")
	}
	scopes := core.NormalizeScopes(req.Scopes)

	if unsupported := req.Capabilities.UnsupportedScopes(scopes); len(unsupported) > 0 {
		return core.TokenGrant{}, core.UnsupportedScopeError(req.Domain, unsupported)
	}

	pkce, err := newPKCEPair()
	if err != nil {
		return core.TokenGrant{}, err
	}
	state, err := newStateToken()
	if err != nil {
		return core.TokenGrant{}, err
	}

	session, err := e.initFlow(ctx, endpoint, initRequest{
		Email:               email,
		ClientID:            e.clientID,
		ClientName:          e.clientName,
		Domain:              req.Domain,
		Scopes:              scopes,
		CodeChallenge:       pkce.challenge,
		CodeChallengeMethod: "S256",
		RedirectURI:         redirectMarker,
		State:               state,
	})
	if err != nil {
		return core.TokenGrant{}, err
	}
	e.logger.Info("authorization flow started",
		"domain", req.Domain,
		"auth_request_id", session.AuthRequestID,
		"email_sent", session.EmailSent,
	)

	code, err := e.pollForApproval(ctx, endpoint, req.Domain, session)
	if err != nil {
		return core.TokenGrant{}, err
	}

	return e.exchangeCode(ctx, endpoint, req.Domain, code, pkce.verifier)
}

func (e *Engine) initFlow(ctx context.Context, endpoint string, payload initRequest) (initResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return initResponse{}, fmt.Errorf("authflow: encode init request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint+authorizeInitPath, bytes.NewReader(body))
	if err != nil {
		return initResponse{}, fmt.Errorf("authflow: build init request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return initResponse{}, core.FlowTransportError(payload.Domain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return initResponse{}, core.FlowTransportError(payload.Domain,
			fmt.Errorf("authorize init returned status %d", resp.StatusCode))
	}

	var session initResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodyBytes)).Decode(&session); err != nil {
		return initResponse{}, core.FlowTransportError(payload.Domain,
			fmt.Errorf("decode authorize init response: %w", err))
	}
	if strings.TrimSpace(session.AuthRequestID) == "" {
		return initResponse{}, core.FlowTransportError(payload.Domain,
			fmt.Errorf("authorize init response missing auth_request_id"))
	}
	return session, nil
}

func (e *Engine) pollForApproval(ctx context.Context, endpoint, domain string, session initResponse) (string, error) {
	interval := e.cfg.PollInterval
	if session.PollInterval > 0 {
		interval = time.Duration(session.PollInterval) * time.Second
	}

	for attempt := 0; attempt < e.cfg.MaxPollAttempts; attempt++ {
		if attempt > 0 {
			if err := waitInterval(ctx, interval); err != nil {
				return "", err
			}
		}

		status, err := e.pollOnce(ctx, endpoint, session.AuthRequestID)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", core.FlowTransportError(domain, err)
		}

		switch strings.ToLower(strings.TrimSpace(status.Status)) {
		case pollStatusAuthorized:
			if strings.TrimSpace(status.Code) == "" {
				return "", core.ExchangeFailedError(domain, fmt.Errorf("authorized response missing code"))
			}
			return status.Code, nil
		case pollStatusDenied:
			return "", core.FlowDeniedError(domain, status.Reason)
		case pollStatusExpired:
			return "", core.FlowExpiredError(domain)
		default:
			// pending or an unrecognized status keeps polling
		}
	}
	return "", core.FlowTimeoutError(domain, e.cfg.MaxPollAttempts)
}

func (e *Engine) pollOnce(ctx context.Context, endpoint, authRequestID string) (pollResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, defaultPollRequestTimeout)
	defer cancel()

	query := url.Values{}
	query.Set("auth_request_id", authRequestID)
	query.Set("client_id", e.clientID)

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint+authorizePollPath+"?"+query.Encode(), nil)
	if err != nil {
		return pollResponse{}, fmt.Errorf("build poll request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return pollResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return pollResponse{}, fmt.Errorf("poll returned status %d", resp.StatusCode)
	}

	var status pollResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodyBytes)).Decode(&status); err != nil {
		return pollResponse{}, fmt.Errorf("decode poll response: %w", err)
	}
	return status, nil
}

func (e *Engine) exchangeCode(ctx context.Context, endpoint, domain, code, verifier string) (core.TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("code_verifier", verifier)
	form.Set("client_id", e.clientID)

	grant, err := e.postTokenForm(ctx, endpoint, form)
	if err != nil {
		return core.TokenGrant{}, core.ExchangeFailedError(domain, err)
	}
	return grant, nil
}

// Refresh presents the refresh token for a new grant. A refresh failure is
// terminal for the stored credential; there is no retry here.
func (e *Engine) Refresh(ctx context.Context, endpoint, refreshToken string) (core.TokenGrant, error) {
	if e == nil {
		return core.TokenGrant{}, fmt.Errorf("authflow: engine is not configured")
	}
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return core.TokenGrant{}, fmt.Errorf("authflow: endpoint is required")
	}
	if strings.TrimSpace(refreshToken) == "" {
		return core.TokenGrant{}, core.RefreshFailedError(hostOf(endpoint), fmt.Errorf("refresh token is empty"))
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", e.clientID)

	grant, err := e.postTokenForm(ctx, endpoint, form)
	if err != nil {
		return core.TokenGrant{}, core.RefreshFailedError(hostOf(endpoint), err)
	}
	return grant, nil
}

// Revoke notifies the merchant the token is dead. Callers treat failures as
// best effort.
func (e *Engine) Revoke(ctx context.Context, endpoint, token string) error {
	if e == nil {
		return fmt.Errorf("authflow: engine is not configured")
	}
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return fmt.Errorf("authflow: endpoint is required")
	}

	form := url.Values{}
	form.Set("token", token)
	form.Set("client_id", e.clientID)

	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint+revokePath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("authflow: build revoke request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("authflow: revoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("authflow: revoke returned status %d", resp.StatusCode)
	}
	return nil
}

func (e *Engine) postTokenForm(ctx context.Context, endpoint string, form url.Values) (core.TokenGrant, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return core.TokenGrant{}, fmt.Errorf("build token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return core.TokenGrant{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return core.TokenGrant{}, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var payload tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodyBytes)).Decode(&payload); err != nil {
		return core.TokenGrant{}, fmt.Errorf("decode token response: %w", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return core.TokenGrant{}, fmt.Errorf("token response missing access_token")
	}

	return core.TokenGrant{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
		ExpiresIn:    payload.ExpiresIn,
		Scope:        payload.Scope,
		CustomerID:   payload.CustomerID,
		Email:        payload.Email,
	}, nil
}

func waitInterval(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = core.DefaultPollInterval
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func hostOf(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return endpoint
	}
	return parsed.Host
}

var _ core.FlowEngine = (*Engine)(nil)
