// Package core contains the canonical customer-auth domain contracts,
// entities, and token lifecycle orchestration. Lower-level adapters
// (discovery, authflow, security, store) must depend on this package; core
// must not depend on protocol-specific or storage-specific adapters.
package core
