package discovery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-customer-auth/core"
)

const (
	wellKnownPath    = "/.well-known/customer-context-protocol"
	endpointHeader   = "X-SCP-Endpoint"
	capabilitiesPath = "/capabilities"

	maxProbeBodyBytes = 64 * 1024
)

type wellKnownDocument struct {
	Endpoint string `json:"endpoint"`
}

// probeWellKnown fetches the well-known document over HTTPS. Any transport
// failure, non-2xx status, or malformed document is a miss; a merchant that
// does not serve the document is indistinguishable from one that is down,
// and the chain still has the header probe left.
func (r *Resolver) probeWellKnown(ctx context.Context, domain string) (string, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, "https://"+domain+wellKnownPath, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", false
	}

	var doc wellKnownDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProbeBodyBytes)).Decode(&doc); err != nil {
		return "", false
	}
	endpoint := strings.TrimSpace(doc.Endpoint)
	if !validEndpoint(endpoint) {
		return "", false
	}
	return endpoint, true
}

// probeHeader issues a HEAD request to the domain root and reads the
// advertised endpoint header. Last resort of the chain.
func (r *Resolver) probeHeader(ctx context.Context, domain string) (string, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, "https://"+domain+"/", nil)
	if err != nil {
		return "", false
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	endpoint := strings.TrimSpace(resp.Header.Get(endpointHeader))
	if !validEndpoint(endpoint) {
		return "", false
	}
	return endpoint, true
}

// FetchCapabilities retrieves the merchant's capability document. The
// document is advisory: every failure degrades to a nil descriptor with no
// error so callers proceed without scope validation.
func (r *Resolver) FetchCapabilities(ctx context.Context, endpoint string) (*core.CapabilityDescriptor, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, endpoint+capabilitiesPath, nil)
	if err != nil {
		return nil, nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, nil
	}

	var descriptor core.CapabilityDescriptor
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProbeBodyBytes)).Decode(&descriptor); err != nil {
		return nil, nil
	}
	return &descriptor, nil
}
