package discovery

import (
	"context"
	"errors"
	"net"
	"strings"
)

const (
	txtServicePrefix  = "_scp._tcp."
	txtVersionToken   = "v=scp1"
	txtEndpointPrefix = "endpoint="
)

// lookupEndpointTXT queries the service TXT record for the domain. A
// not-found answer is an ordinary miss and lets the chain continue; any
// other resolver failure is surfaced so infrastructure trouble is not
// mistaken for a merchant without protocol support.
func (r *Resolver) lookupEndpointTXT(ctx context.Context, domain string) (string, bool, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	records, err := r.lookupTXT(lookupCtx, txtServicePrefix+domain)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return "", false, nil
		}
		return "", false, err
	}

	for _, record := range records {
		if endpoint, ok := parseServiceRecord(record); ok {
			return endpoint, true, nil
		}
	}
	return "", false, nil
}

// parseServiceRecord accepts records of the form
// "v=scp1 endpoint=https://host/path". The version token must lead and the
// endpoint value runs to the next whitespace.
func parseServiceRecord(record string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(record))
	if len(fields) < 2 || fields[0] != txtVersionToken {
		return "", false
	}
	for _, field := range fields[1:] {
		value, ok := strings.CutPrefix(field, txtEndpointPrefix)
		if !ok {
			continue
		}
		if validEndpoint(value) {
			return value, true
		}
	}
	return "", false
}
