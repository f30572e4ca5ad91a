package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorCodeBadInput           = "AUTH_BAD_INPUT"
	ErrorCodeDiscoveryNotFound  = "AUTH_DISCOVERY_NOT_FOUND"
	ErrorCodeDiscoveryTransport = "AUTH_DISCOVERY_TRANSPORT"
	ErrorCodeUnsupportedScope   = "AUTH_SCOPE_UNSUPPORTED"
	ErrorCodeFlowDenied         = "AUTH_FLOW_DENIED"
	ErrorCodeFlowExpired        = "AUTH_FLOW_EXPIRED"
	ErrorCodeFlowTimeout        = "AUTH_FLOW_TIMEOUT"
	ErrorCodeFlowTransport      = "AUTH_FLOW_TRANSPORT"
	ErrorCodeExchangeFailed     = "AUTH_EXCHANGE_FAILED"
	ErrorCodeRefreshFailed      = "AUTH_REFRESH_FAILED"
	ErrorCodeCryptoIntegrity    = "AUTH_CRYPTO_INTEGRITY"
	ErrorCodeNotAuthorized      = "AUTH_NOT_AUTHORIZED"
	ErrorCodeIdentityConflict   = "AUTH_IDENTITY_CONFLICT"
	ErrorCodeInternal           = "AUTH_INTERNAL_ERROR"
)

// HasErrorCode reports whether err carries the given taxonomy text code.
// Callers dispatch on the code, never on message content.
func HasErrorCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(richErr.TextCode), strings.TrimSpace(textCode))
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "authorization not found"), strings.Contains(msg, "not authorized"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ErrorCodeNotAuthorized)
	case strings.Contains(msg, "integrity"), strings.Contains(msg, "message authentication failed"):
		return newServiceError(err.Error(), goerrors.CategoryInternal, ErrorCodeCryptoIntegrity)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ErrorCodeBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = errorHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultErrorTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultErrorTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorCodeBadInput
	case goerrors.CategoryNotFound:
		return ErrorCodeNotAuthorized
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorCodeFlowDenied
	case goerrors.CategoryConflict:
		return ErrorCodeIdentityConflict
	case goerrors.CategoryOperation:
		return ErrorCodeDiscoveryTransport
	default:
		return ErrorCodeInternal
	}
}

func errorHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// NotAuthorizedError signals that no authorization record exists for the
// domain. The remediation is to run Authorize first.
func NotAuthorizedError(domain string) *goerrors.Error {
	return newServiceError(
		"no authorization exists for domain "+strings.TrimSpace(domain)+"; call Authorize to start a new flow",
		goerrors.CategoryNotFound,
		ErrorCodeNotAuthorized,
	).WithMetadata(map[string]any{"domain": strings.TrimSpace(domain)})
}

// IdentityConflictError refuses to silently switch customer identity under
// one domain key: the caller must revoke the existing grant first.
func IdentityConflictError(domain, existingEmail, requestedEmail string) *goerrors.Error {
	return newServiceError(
		"domain "+strings.TrimSpace(domain)+" is already authorized for a different customer; revoke the existing authorization before authorizing "+strings.TrimSpace(requestedEmail),
		goerrors.CategoryConflict,
		ErrorCodeIdentityConflict,
	).WithMetadata(map[string]any{
		"domain":          strings.TrimSpace(domain),
		"existing_email":  strings.TrimSpace(existingEmail),
		"requested_email": strings.TrimSpace(requestedEmail),
	})
}

// UnsupportedScopeError aborts a flow before initiation and enumerates the
// scopes the merchant does not advertise.
func UnsupportedScopeError(domain string, unsupported []string) *goerrors.Error {
	return newServiceError(
		"merchant "+strings.TrimSpace(domain)+" does not support requested scopes: "+strings.Join(unsupported, ", ")+"; remove them or request a supported scope set",
		goerrors.CategoryValidation,
		ErrorCodeUnsupportedScope,
	).WithMetadata(map[string]any{
		"domain":             strings.TrimSpace(domain),
		"unsupported_scopes": append([]string(nil), unsupported...),
	})
}

// FlowDeniedError carries the merchant-reported reason for a customer
// declining the authorization request.
func FlowDeniedError(domain, reason string) *goerrors.Error {
	message := "customer denied the authorization request for domain " + strings.TrimSpace(domain)
	if strings.TrimSpace(reason) != "" {
		message += ": " + strings.TrimSpace(reason)
	}
	return newServiceError(message, goerrors.CategoryAuth, ErrorCodeFlowDenied).
		WithMetadata(map[string]any{"domain": strings.TrimSpace(domain), "reason": strings.TrimSpace(reason)})
}

// FlowExpiredError signals the merchant expired the pending request before
// the customer acted on it.
func FlowExpiredError(domain string) *goerrors.Error {
	return newServiceError(
		"authorization request for domain "+strings.TrimSpace(domain)+" expired before the customer approved it; start a new flow",
		goerrors.CategoryAuth,
		ErrorCodeFlowExpired,
	).WithMetadata(map[string]any{"domain": strings.TrimSpace(domain)})
}

// FlowTimeoutError signals the local poll budget ran out while the request
// was still pending on the merchant side.
func FlowTimeoutError(domain string, attempts int) *goerrors.Error {
	return newServiceError(
		"gave up polling for authorization approval on domain "+strings.TrimSpace(domain)+"; the customer may approve later, start a new flow to retry",
		goerrors.CategoryOperation,
		ErrorCodeFlowTimeout,
	).WithMetadata(map[string]any{"domain": strings.TrimSpace(domain), "attempts": attempts})
}

// ExchangeFailedError wraps a failed authorization-code exchange.
func ExchangeFailedError(domain string, cause error) *goerrors.Error {
	message := "token exchange failed for domain " + strings.TrimSpace(domain)
	if cause != nil {
		message += ": " + cause.Error()
	}
	return newServiceError(message, goerrors.CategoryAuth, ErrorCodeExchangeFailed).
		WithMetadata(map[string]any{"domain": strings.TrimSpace(domain)})
}

// RefreshFailedError wraps a failed refresh grant. Refresh failures are
// fatal for the stored credential; re-authorization is the remediation.
func RefreshFailedError(domain string, cause error) *goerrors.Error {
	message := "token refresh failed for domain " + strings.TrimSpace(domain) + "; re-run Authorize to obtain a new grant"
	if cause != nil {
		message += " (" + cause.Error() + ")"
	}
	return newServiceError(message, goerrors.CategoryAuth, ErrorCodeRefreshFailed).
		WithMetadata(map[string]any{"domain": strings.TrimSpace(domain)})
}

// FlowTransportError wraps network and protocol failures during the
// authorization flow itself, after an endpoint was already discovered.
func FlowTransportError(domain string, cause error) *goerrors.Error {
	message := "authorization flow request failed for domain " + strings.TrimSpace(domain)
	if cause != nil {
		message += ": " + cause.Error()
	}
	return newServiceError(message, goerrors.CategoryOperation, ErrorCodeFlowTransport).
		WithMetadata(map[string]any{"domain": strings.TrimSpace(domain)})
}

// DiscoveryTransportError distinguishes infrastructure failures from a
// merchant that simply does not advertise an endpoint.
func DiscoveryTransportError(domain string, cause error) *goerrors.Error {
	message := "endpoint discovery failed for domain " + strings.TrimSpace(domain)
	if cause != nil {
		message += ": " + cause.Error()
	}
	return newServiceError(message, goerrors.CategoryOperation, ErrorCodeDiscoveryTransport).
		WithMetadata(map[string]any{"domain": strings.TrimSpace(domain)})
}

// CryptoIntegrityError is returned when a stored envelope fails
// authentication. No partial plaintext ever escapes.
func CryptoIntegrityError(cause error) *goerrors.Error {
	message := "secret envelope failed integrity verification"
	if cause != nil {
		message += ": " + cause.Error()
	}
	return newServiceError(message, goerrors.CategoryInternal, ErrorCodeCryptoIntegrity)
}

// DiscoveryNotFoundError is returned when every step of the discovery chain
// missed for the domain.
func DiscoveryNotFoundError(domain string) *goerrors.Error {
	return newServiceError(
		"no customer-context endpoint found for domain "+strings.TrimSpace(domain)+"; the merchant may not support the protocol",
		goerrors.CategoryNotFound,
		ErrorCodeDiscoveryNotFound,
	).WithMetadata(map[string]any{"domain": strings.TrimSpace(domain)})
}
