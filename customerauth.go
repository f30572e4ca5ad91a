package customerauth

import "github.com/goliatone/go-customer-auth/core"

type Config = core.Config

type DiscoveryConfig = core.DiscoveryConfig

type FlowConfig = core.FlowConfig

type RefreshConfig = core.RefreshConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type EndpointResolver = core.EndpointResolver
type FlowEngine = core.FlowEngine
type SecretProvider = core.SecretProvider
type DomainLocker = core.DomainLocker
type AuthorizationStore = core.AuthorizationStore
type EndpointCacheStore = core.EndpointCacheStore
type MasterKeyStore = core.MasterKeyStore

type Authorization = core.Authorization
type ResolvedEndpoint = core.ResolvedEndpoint
type CapabilityDescriptor = core.CapabilityDescriptor

type AuthorizeRequest = core.AuthorizeRequest

type AuthorizeResult = core.AuthorizeResult

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorFactory       = core.WithErrorFactory
	WithErrorMapper        = core.WithErrorMapper
	WithSecretProvider     = core.WithSecretProvider
	WithPersistenceClient  = core.WithPersistenceClient
	WithRepositoryFactory  = core.WithRepositoryFactory
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithEndpointResolver   = core.WithEndpointResolver
	WithFlowEngine         = core.WithFlowEngine
	WithDomainLocker       = core.WithDomainLocker
	WithAuthorizationStore = core.WithAuthorizationStore
	WithEndpointCacheStore = core.WithEndpointCacheStore
	WithMasterKeyStore     = core.WithMasterKeyStore
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
