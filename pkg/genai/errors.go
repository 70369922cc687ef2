package genai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// FailureClass buckets remote-call failures into the categories the
// orchestrator acts on.
type FailureClass string

const (
	// ClassQuota is hard quota exhaustion. Never retried; arms the
	// circuit breaker.
	ClassQuota FailureClass = "quota"

	// ClassRateLimit is a transient 429-shaped rejection. Retried with
	// backoff.
	ClassRateLimit FailureClass = "rate_limit"

	// ClassAuth means the credential was rejected. Not retried; the
	// stored credential is cleared so the user is re-prompted.
	ClassAuth FailureClass = "auth"

	// ClassCooldown is synthesized locally while the breaker is active;
	// no remote call was attempted.
	ClassCooldown FailureClass = "cooldown"

	// ClassUnclassified is everything else, surfaced verbatim.
	ClassUnclassified FailureClass = "unclassified"
)

// APIError is a failure reported by the remote generation endpoint.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// CooldownError is returned without attempting a remote call while the
// quota circuit breaker is active. Until tells the caller when calls
// will be accepted again.
type CooldownError struct {
	Until time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("ai calls suspended until %s (quota cooldown)", e.Until.Format(time.RFC3339))
}

// RetryIn returns how long until the cooldown expires.
func (e *CooldownError) RetryIn(now time.Time) time.Duration {
	d := e.Until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

var quotaMarkers = []string{
	"quota",
	"resource_exhausted",
	"resource exhausted",
	"insufficient_quota",
	"billing",
}

var rateLimitMarkers = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
}

var authMarkers = []string{
	"invalid api key",
	"invalid_api_key",
	"api key expired",
	"incorrect api key",
	"unauthorized",
	"permission denied",
}

// Classify assigns a failure class to an error from a call attempt.
// Quota wording is checked before the status code: real quota
// exhaustion often arrives with a 429, and must circuit-break rather
// than retry.
func Classify(err error) FailureClass {
	if err == nil {
		return ClassUnclassified
	}

	var cd *CooldownError
	if errors.As(err, &cd) {
		return ClassCooldown
	}

	msg := strings.ToLower(err.Error())
	status := 0
	var api *APIError
	if errors.As(err, &api) {
		status = api.StatusCode
	}

	for _, m := range quotaMarkers {
		if strings.Contains(msg, m) {
			return ClassQuota
		}
	}

	if status == http.StatusTooManyRequests {
		return ClassRateLimit
	}
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return ClassRateLimit
		}
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return ClassAuth
	}
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return ClassAuth
		}
	}

	return ClassUnclassified
}
