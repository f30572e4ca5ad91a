package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig      Config
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

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithSecretProvider(provider SecretProvider) Option {
	return func(b *serviceBuilder) {
		b.secretProvider = provider
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithEndpointResolver(resolver EndpointResolver) Option {
	return func(b *serviceBuilder) {
		b.resolver = resolver
	}
}

func WithFlowEngine(engine FlowEngine) Option {
	return func(b *serviceBuilder) {
		b.flowEngine = engine
	}
}

func WithDomainLocker(locker DomainLocker) Option {
	return func(b *serviceBuilder) {
		b.domainLocker = locker
	}
}

func WithAuthorizationStore(store AuthorizationStore) Option {
	return func(b *serviceBuilder) {
		b.authorizationStore = store
	}
}

func WithEndpointCacheStore(store EndpointCacheStore) Option {
	return func(b *serviceBuilder) {
		b.endpointCacheStore = store
	}
}

func WithMasterKeyStore(store MasterKeyStore) Option {
	return func(b *serviceBuilder) {
		b.masterKeyStore = store
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.nowFn = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("customer-auth", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.ClientID) != "" {
		layer["client_id"] = cfg.ClientID
	}
	if includeZero || strings.TrimSpace(cfg.ClientName) != "" {
		layer["client_name"] = cfg.ClientName
	}

	discovery := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Discovery.OverrideEndpoint) != "" {
		discovery["override_endpoint"] = cfg.Discovery.OverrideEndpoint
	}
	if includeZero || strings.TrimSpace(cfg.Discovery.DemoEndpoint) != "" {
		discovery["demo_endpoint"] = cfg.Discovery.DemoEndpoint
	}
	if includeZero || cfg.Discovery.CacheTTL > 0 {
		discovery["cache_ttl"] = cfg.Discovery.CacheTTL
	}
	if includeZero || cfg.Discovery.ProbeTimeout > 0 {
		discovery["probe_timeout"] = cfg.Discovery.ProbeTimeout
	}
	if len(discovery) > 0 {
		layer["discovery"] = discovery
	}

	flow := map[string]any{}
	if includeZero || cfg.Flow.PollInterval > 0 {
		flow["poll_interval"] = cfg.Flow.PollInterval
	}
	if includeZero || cfg.Flow.MaxPollAttempts > 0 {
		flow["max_poll_attempts"] = cfg.Flow.MaxPollAttempts
	}
	if includeZero || cfg.Flow.RequestTimeout > 0 {
		flow["request_timeout"] = cfg.Flow.RequestTimeout
	}
	if len(flow) > 0 {
		layer["flow"] = flow
	}

	refresh := map[string]any{}
	if includeZero || cfg.Refresh.Threshold > 0 {
		refresh["threshold"] = cfg.Refresh.Threshold
	}
	if includeZero || cfg.Refresh.LockTTL > 0 {
		refresh["lock_ttl"] = cfg.Refresh.LockTTL
	}
	if len(refresh) > 0 {
		layer["refresh"] = refresh
	}

	return layer
}
