package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Service is the token lifecycle manager. It owns the authorization records
// for every merchant domain, runs the discovery and authorize flow through
// its collaborators, and guarantees callers only ever see a decrypted access
// token that is not inside the refresh threshold.
type Service struct {
	config             Config
	logger             Logger
	loggerProvider     LoggerProvider
	metricsRecorder    MetricsRecorder
	errorFactory       ErrorFactory
	errorMapper        ErrorMapper
	secretProvider     SecretProvider
	persistenceClient  any
	repositoryFactory  any
	configProvider     ConfigProvider
	optionsResolver    OptionsResolver
	resolver           EndpointResolver
	flowEngine         FlowEngine
	domainLocker       DomainLocker
	authorizationStore AuthorizationStore
	endpointCacheStore EndpointCacheStore
	masterKeyStore     MasterKeyStore
	nowFn              func() time.Time
}

type ServiceDependencies struct {
	Logger             Logger
	LoggerProvider     LoggerProvider
	MetricsRecorder    MetricsRecorder
	ErrorFactory       ErrorFactory
	ErrorMapper        ErrorMapper
	SecretProvider     SecretProvider
	PersistenceClient  any
	RepositoryFactory  any
	ConfigProvider     ConfigProvider
	OptionsResolver    OptionsResolver
	EndpointResolver   EndpointResolver
	FlowEngine         FlowEngine
	DomainLocker       DomainLocker
	AuthorizationStore AuthorizationStore
	EndpointCacheStore EndpointCacheStore
	MasterKeyStore     MasterKeyStore
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("customer-auth", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("customer-auth"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = defaultServiceBuilder(cfg).errorFactory
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.domainLocker == nil {
		builder.domainLocker = NewMemoryDomainLocker()
	}
	if builder.nowFn == nil {
		builder.nowFn = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	needsStores := builder.authorizationStore == nil ||
		builder.endpointCacheStore == nil ||
		builder.masterKeyStore == nil
	if needsStores && builder.repositoryFactory != nil {
		var storeProvider StoreProvider
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			storeProvider = built
		} else if direct, ok := builder.repositoryFactory.(StoreProvider); ok {
			storeProvider = direct
		}
		if storeProvider != nil {
			if builder.authorizationStore == nil {
				builder.authorizationStore = storeProvider.AuthorizationStore()
			}
			if builder.endpointCacheStore == nil {
				builder.endpointCacheStore = storeProvider.EndpointCacheStore()
			}
			if builder.masterKeyStore == nil {
				builder.masterKeyStore = storeProvider.MasterKeyStore()
			}
		}
	}

	return &Service{
		config:             finalConfig,
		logger:             logger,
		loggerProvider:     provider,
		metricsRecorder:    builder.metricsRecorder,
		errorFactory:       builder.errorFactory,
		errorMapper:        builder.errorMapper,
		secretProvider:     builder.secretProvider,
		persistenceClient:  builder.persistenceClient,
		repositoryFactory:  builder.repositoryFactory,
		configProvider:     builder.configProvider,
		optionsResolver:    builder.optionsResolver,
		resolver:           builder.resolver,
		flowEngine:         builder.flowEngine,
		domainLocker:       builder.domainLocker,
		authorizationStore: builder.authorizationStore,
		endpointCacheStore: builder.endpointCacheStore,
		masterKeyStore:     builder.masterKeyStore,
		nowFn:              builder.nowFn,
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:             s.logger,
		LoggerProvider:     s.loggerProvider,
		MetricsRecorder:    s.metricsRecorder,
		ErrorFactory:       s.errorFactory,
		ErrorMapper:        s.errorMapper,
		SecretProvider:     s.secretProvider,
		PersistenceClient:  s.persistenceClient,
		RepositoryFactory:  s.repositoryFactory,
		ConfigProvider:     s.configProvider,
		OptionsResolver:    s.optionsResolver,
		EndpointResolver:   s.resolver,
		FlowEngine:         s.flowEngine,
		DomainLocker:       s.domainLocker,
		AuthorizationStore: s.authorizationStore,
		EndpointCacheStore: s.endpointCacheStore,
		MasterKeyStore:     s.masterKeyStore,
	}
}

func (s *Service) now() time.Time {
	if s == nil || s.nowFn == nil {
		return time.Now().UTC()
	}
	return s.nowFn().UTC()
}

// GetValidAccessToken returns a decrypted access token for the domain that is
// guaranteed to live past the refresh threshold. Reads of tokens outside the
// threshold take no lock. When the stored token is near expiry the refresh
// runs under a per-domain lock and expiry is re-checked after acquisition, so
// concurrent callers all succeed with exactly one refresh between them; a
// failed refresh propagates and the stored record stays untouched.
func (s *Service) GetValidAccessToken(ctx context.Context, domain string) (token string, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"domain": domain}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_valid_access_token", err, fields)
	}()

	domain, err = NormalizeDomain(domain)
	if err != nil {
		err = s.mapError(err)
		return "", err
	}
	fields["domain"] = domain
	if err = s.requireTokenDependencies(); err != nil {
		err = s.mapError(err)
		return "", err
	}

	record, found, err := s.authorizationStore.GetByDomain(ctx, domain)
	if err != nil {
		err = s.mapError(err)
		return "", err
	}
	if !found {
		err = NotAuthorizedError(domain)
		return "", err
	}

	threshold := s.config.Refresh.Threshold
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}
	if record.ExpiresAt.Sub(s.now()) >= threshold {
		plaintext, decryptErr := s.secretProvider.Decrypt(ctx, []byte(record.AccessTokenEnvelope))
		if decryptErr != nil {
			err = s.mapError(decryptErr)
			return "", err
		}
		return string(plaintext), nil
	}

	if s.domainLocker != nil && !domainLockHeld(ctx, domain) {
		handle, lockErr := s.domainLocker.Acquire(ctx, domain, s.config.Refresh.LockTTL)
		if lockErr != nil {
			err = s.mapError(lockErr)
			return "", err
		}
		ctx = contextWithDomainLock(ctx, domain)
		defer func() {
			_ = handle.Unlock(ctx)
		}()

		// Another caller may have refreshed while we waited for the lock.
		record, found, err = s.authorizationStore.GetByDomain(ctx, domain)
		if err != nil {
			err = s.mapError(err)
			return "", err
		}
		if !found {
			err = NotAuthorizedError(domain)
			return "", err
		}
		if record.ExpiresAt.Sub(s.now()) >= threshold {
			plaintext, decryptErr := s.secretProvider.Decrypt(ctx, []byte(record.AccessTokenEnvelope))
			if decryptErr != nil {
				err = s.mapError(decryptErr)
				return "", err
			}
			return string(plaintext), nil
		}
	}
	fields["refreshed"] = true

	refreshToken, err := s.secretProvider.Decrypt(ctx, []byte(record.RefreshTokenEnvelope))
	if err != nil {
		err = s.mapError(err)
		return "", err
	}
	grant, err := s.flowEngine.Refresh(ctx, record.Endpoint, string(refreshToken))
	if err != nil {
		err = s.mapError(err)
		return "", err
	}

	if _, err = s.persistGrant(ctx, record, grant, s.now()); err != nil {
		err = s.mapError(err)
		return "", err
	}
	return grant.AccessToken, nil
}

type AuthorizeRequest struct {
	Domain string
	Email  string
	Scopes []string
}

type AuthorizeResult struct {
	Authorization     Authorization
	AlreadyAuthorized bool
	ResolvedEndpoint  ResolvedEndpoint
}

// Authorize runs the out-of-band authorize-and-poll flow for a domain. When
// an authorization already exists for the same customer email and scope set
// the call is idempotent and makes zero network requests. A different email
// under the same domain is refused; the caller must revoke first.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (result AuthorizeResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"domain": req.Domain,
		"email":  req.Email,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "authorize", err, fields)
	}()

	domain, err := NormalizeDomain(req.Domain)
	if err != nil {
		err = s.mapError(err)
		return AuthorizeResult{}, err
	}
	fields["domain"] = domain
	email := strings.TrimSpace(req.Email)
	if email == "" {
		err = s.mapError(fmt.Errorf("core: customer email is required"))
		return AuthorizeResult{}, err
	}
	scopes := NormalizeScopes(req.Scopes)

	if err = s.requireFlowDependencies(); err != nil {
		err = s.mapError(err)
		return AuthorizeResult{}, err
	}

	existing, found, err := s.authorizationStore.GetByDomain(ctx, domain)
	if err != nil {
		err = s.mapError(err)
		return AuthorizeResult{}, err
	}
	if found {
		if !strings.EqualFold(strings.TrimSpace(existing.CustomerEmail), email) {
			err = IdentityConflictError(domain, existing.CustomerEmail, email)
			return AuthorizeResult{}, err
		}
		if SameScopeSet(existing.Scopes, scopes) {
			fields["already_authorized"] = true
			result = AuthorizeResult{Authorization: existing, AlreadyAuthorized: true}
			return result, nil
		}
	}

	resolved, err := s.resolver.Resolve(ctx, domain)
	if err != nil {
		err = s.mapError(err)
		return AuthorizeResult{}, err
	}
	fields["endpoint_source"] = string(resolved.Source)

	capabilities, capErr := s.resolver.FetchCapabilities(ctx, resolved.Endpoint)
	if capErr != nil {
		capabilities = nil
	}

	grant, err := s.flowEngine.Authorize(ctx, FlowRequest{
		Domain:       domain,
		Endpoint:     resolved.Endpoint,
		Email:        email,
		Scopes:       scopes,
		Capabilities: capabilities,
	})
	if err != nil {
		err = s.mapError(err)
		return AuthorizeResult{}, err
	}

	now := s.now()
	accessEnvelope, err := s.secretProvider.Encrypt(ctx, []byte(grant.AccessToken))
	if err != nil {
		err = s.mapError(err)
		return AuthorizeResult{}, err
	}
	refreshEnvelope, err := s.secretProvider.Encrypt(ctx, []byte(grant.RefreshToken))
	if err != nil {
		err = s.mapError(err)
		return AuthorizeResult{}, err
	}

	grantedScopes := grant.GrantedScopes()
	if len(grantedScopes) == 0 {
		grantedScopes = scopes
	}
	customerEmail := strings.TrimSpace(grant.Email)
	if customerEmail == "" {
		customerEmail = email
	}

	record, err := s.authorizationStore.Upsert(ctx, UpsertAuthorizationInput{
		Domain:               domain,
		Endpoint:             resolved.Endpoint,
		CustomerID:           strings.TrimSpace(grant.CustomerID),
		CustomerEmail:        customerEmail,
		AccessTokenEnvelope:  string(accessEnvelope),
		RefreshTokenEnvelope: string(refreshEnvelope),
		ExpiresAt:            grant.ExpiryFrom(now),
		Scopes:               grantedScopes,
	})
	if err != nil {
		err = s.mapError(err)
		return AuthorizeResult{}, err
	}

	result = AuthorizeResult{Authorization: record, ResolvedEndpoint: resolved}
	return result, nil
}

// Revoke tears down the authorization for a domain. The remote revocation is
// best effort: a merchant that is unreachable or rejects the call does not
// keep the local record alive.
func (s *Service) Revoke(ctx context.Context, domain string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"domain": domain}
	defer func() {
		s.observeOperation(ctx, startedAt, "revoke", err, fields)
	}()

	domain, err = NormalizeDomain(domain)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	fields["domain"] = domain
	if s.authorizationStore == nil {
		err = s.mapError(fmt.Errorf("core: authorization store is required"))
		return err
	}

	record, found, err := s.authorizationStore.GetByDomain(ctx, domain)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	if !found {
		err = NotAuthorizedError(domain)
		return err
	}

	if s.flowEngine != nil && s.secretProvider != nil {
		accessToken, decryptErr := s.secretProvider.Decrypt(ctx, []byte(record.AccessTokenEnvelope))
		if decryptErr != nil {
			s.logError(ctx, "revoke: access token decrypt failed, skipping remote revocation", map[string]any{
				"domain": domain,
				"error":  decryptErr.Error(),
			})
		} else if revokeErr := s.flowEngine.Revoke(ctx, record.Endpoint, string(accessToken)); revokeErr != nil {
			s.logError(ctx, "revoke: remote revocation failed, deleting local record anyway", map[string]any{
				"domain":   domain,
				"endpoint": record.Endpoint,
				"error":    revokeErr.Error(),
			})
		}
	}

	if err = s.authorizationStore.DeleteByDomain(ctx, domain); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

// GetAuthorization returns the stored record with token envelopes intact.
// Nothing is decrypted on the read path.
func (s *Service) GetAuthorization(ctx context.Context, domain string) (record Authorization, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"domain": domain}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_authorization", err, fields)
	}()

	domain, err = NormalizeDomain(domain)
	if err != nil {
		err = s.mapError(err)
		return Authorization{}, err
	}
	fields["domain"] = domain
	if s.authorizationStore == nil {
		err = s.mapError(fmt.Errorf("core: authorization store is required"))
		return Authorization{}, err
	}

	record, found, err := s.authorizationStore.GetByDomain(ctx, domain)
	if err != nil {
		err = s.mapError(err)
		return Authorization{}, err
	}
	if !found {
		err = NotAuthorizedError(domain)
		return Authorization{}, err
	}
	return record, nil
}

func (s *Service) ListAuthorizations(ctx context.Context) (records []Authorization, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "list_authorizations", err, nil)
	}()

	if s == nil || s.authorizationStore == nil {
		err = s.mapError(fmt.Errorf("core: authorization store is required"))
		return nil, err
	}
	records, err = s.authorizationStore.List(ctx)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	return records, nil
}

// ResolveEndpoint exposes the discovery chain without touching token state.
func (s *Service) ResolveEndpoint(ctx context.Context, domain string) (resolved ResolvedEndpoint, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"domain": domain}
	defer func() {
		s.observeOperation(ctx, startedAt, "resolve_endpoint", err, fields)
	}()

	domain, err = NormalizeDomain(domain)
	if err != nil {
		err = s.mapError(err)
		return ResolvedEndpoint{}, err
	}
	fields["domain"] = domain
	if s.resolver == nil {
		err = s.mapError(fmt.Errorf("core: endpoint resolver is required"))
		return ResolvedEndpoint{}, err
	}

	resolved, err = s.resolver.Resolve(ctx, domain)
	if err != nil {
		err = s.mapError(err)
		return ResolvedEndpoint{}, err
	}
	fields["endpoint_source"] = string(resolved.Source)
	return resolved, nil
}

func (s *Service) persistGrant(ctx context.Context, record Authorization, grant TokenGrant, issuedAt time.Time) (Authorization, error) {
	accessEnvelope, err := s.secretProvider.Encrypt(ctx, []byte(grant.AccessToken))
	if err != nil {
		return Authorization{}, err
	}
	refreshEnvelope := record.RefreshTokenEnvelope
	if strings.TrimSpace(grant.RefreshToken) != "" {
		sealed, sealErr := s.secretProvider.Encrypt(ctx, []byte(grant.RefreshToken))
		if sealErr != nil {
			return Authorization{}, sealErr
		}
		refreshEnvelope = string(sealed)
	}

	scopes := grant.GrantedScopes()
	if len(scopes) == 0 {
		scopes = record.Scopes
	}
	email := strings.TrimSpace(grant.Email)
	if email == "" {
		email = record.CustomerEmail
	}
	customerID := strings.TrimSpace(grant.CustomerID)
	if customerID == "" {
		customerID = record.CustomerID
	}

	return s.authorizationStore.Upsert(ctx, UpsertAuthorizationInput{
		Domain:               record.Domain,
		Endpoint:             record.Endpoint,
		CustomerID:           customerID,
		CustomerEmail:        email,
		AccessTokenEnvelope:  string(accessEnvelope),
		RefreshTokenEnvelope: refreshEnvelope,
		ExpiresAt:            grant.ExpiryFrom(issuedAt),
		Scopes:               scopes,
	})
}

func (s *Service) requireTokenDependencies() error {
	if s == nil {
		return fmt.Errorf("core: service is not configured")
	}
	if s.authorizationStore == nil {
		return fmt.Errorf("core: authorization store is required")
	}
	if s.secretProvider == nil {
		return fmt.Errorf("core: secret provider is required")
	}
	if s.flowEngine == nil {
		return fmt.Errorf("core: flow engine is required")
	}
	return nil
}

func (s *Service) requireFlowDependencies() error {
	if err := s.requireTokenDependencies(); err != nil {
		return err
	}
	if s.resolver == nil {
		return fmt.Errorf("core: endpoint resolver is required")
	}
	return nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
