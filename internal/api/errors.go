package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeBadRequest         = "bad_request"
	CodeInvalidDuration    = "invalid_duration"
	CodeCapabilityMissing  = "capability_missing"
	CodeSessionActive      = "session_active"
	CodeBudgetExhausted    = "budget_exhausted"
	CodeCancelDenied       = "cancel_denied"
	CodeNotPremium         = "not_premium"
	CodeMonitoringDegraded = "monitoring_degraded"
	CodeInternal           = "internal"
)

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	// Order matters: a denied cancel wraps ErrBudgetExhausted too.
	{domain.ErrCancelDenied, http.StatusForbidden, CodeCancelDenied},
	{domain.ErrBudgetExhausted, http.StatusForbidden, CodeBudgetExhausted},
	{domain.ErrInvalidDuration, http.StatusBadRequest, CodeInvalidDuration},
	{domain.ErrCapabilityMissing, http.StatusPreconditionFailed, CodeCapabilityMissing},
	{domain.ErrSessionActive, http.StatusConflict, CodeSessionActive},
	{domain.ErrNotPremium, http.StatusPaymentRequired, CodeNotPremium},
	{domain.ErrMonitoringDegraded, http.StatusServiceUnavailable, CodeMonitoringDegraded},
}

func classify(err error) (int, string) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// APIError is a non-2xx reply decoded by Client. It unwraps to the matching
// domain sentinel so callers can use errors.Is across the process boundary.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("detoxd: HTTP %d (%s)", e.Status, e.Code)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	for _, t := range errorTable {
		if t.code == e.Code {
			return t.err
		}
	}
	return nil
}
