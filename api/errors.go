package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/xraph/starledger"
	"github.com/xraph/starledger/guard"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Fields  []fieldError `json:"fields,omitempty"`
	Rule    string       `json:"rule,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// errBadRequest marks malformed requests caught before the engine runs.
var errBadRequest = errors.New("bad request")

// statusFor maps an engine error to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	var gerr *guard.Error
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case starledger.IsValidation(err):
		return http.StatusBadRequest, "invalid_input"
	case errors.As(err, &gerr) && gerr.Rule == guard.RuleDuplicatePending,
		errors.Is(err, starledger.ErrDuplicatePending):
		return http.StatusConflict, "duplicate_pending"
	case starledger.IsGuardError(err):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, starledger.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, starledger.ErrCreditLimitExceeded):
		return http.StatusUnprocessableEntity, "credit_limit_exceeded"
	case errors.Is(err, starledger.ErrCreditDisabled):
		return http.StatusUnprocessableEntity, "credit_disabled"
	case errors.Is(err, starledger.ErrNoOutstandingDebt):
		return http.StatusUnprocessableEntity, "no_outstanding_debt"
	case errors.Is(err, starledger.ErrInactive):
		return http.StatusUnprocessableEntity, "inactive"
	case starledger.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, starledger.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, starledger.ErrAlreadyReviewed):
		return http.StatusConflict, "already_reviewed"
	case errors.Is(err, starledger.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, starledger.ErrAlreadySettled):
		return http.StatusConflict, "already_settled"
	case errors.Is(err, starledger.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case starledger.IsRetryable(err):
		return http.StatusServiceUnavailable, "retryable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	body := errorBody{Error: errorDetail{Code: code, Message: err.Error()}}

	var gerr *guard.Error
	if errors.As(err, &gerr) {
		body.Error.Rule = string(gerr.Rule)
		if gerr.RetryAfter > 0 {
			secs := int(math.Ceil(gerr.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}
	body.Error.Fields = fieldErrors(err)

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		if status == http.StatusInternalServerError {
			body.Error.Message = "internal error"
		}
	}
	writeJSON(w, status, body)
}

func fieldErrors(err error) []fieldError {
	var me starledger.MultiError
	if errors.As(err, &me) {
		out := make([]fieldError, 0, len(me.Errors))
		for _, e := range me.Errors {
			var ve starledger.ValidationError
			if errors.As(e, &ve) {
				out = append(out, fieldError{Field: ve.Field, Message: ve.Message})
			}
		}
		return out
	}
	var ve starledger.ValidationError
	if errors.As(err, &ve) {
		return []fieldError{{Field: ve.Field, Message: ve.Message}}
	}
	return nil
}
