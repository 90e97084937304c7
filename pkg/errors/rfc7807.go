// Package errors provides error handling for the HTTP API using the
// RFC 7807 Problem Details format.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
	Unwrap = errors.Unwrap
	New    = errors.New
)

// Problem type URIs
const (
	TypeValidationError  = "https://api.homecarehub.io/problems/validation-error"
	TypeUnauthorized     = "https://api.homecarehub.io/problems/unauthorized"
	TypeForbidden        = "https://api.homecarehub.io/problems/forbidden"
	TypeNotFound         = "https://api.homecarehub.io/problems/not-found"
	TypeConflict         = "https://api.homecarehub.io/problems/conflict"
	TypeInternalError    = "https://api.homecarehub.io/problems/internal-error"
	TypeAmbiguousCompany = "https://api.homecarehub.io/problems/ambiguous-company"
	TypeOutOfScope       = "https://api.homecarehub.io/problems/out-of-scope"
	TypeSeatLimit        = "https://api.homecarehub.io/problems/seat-limit-reached"
	TypeLastOwner        = "https://api.homecarehub.io/problems/last-owner"
	TypeReadOnlyCompany  = "https://api.homecarehub.io/problems/company-read-only"
	TypeMFARequired      = "https://api.homecarehub.io/problems/mfa-required"
	TypeInviteExpired    = "https://api.homecarehub.io/problems/invitation-expired"
)

// Problem titles
const (
	TitleValidationError  = "Validation Error"
	TitleUnauthorized     = "Unauthorized"
	TitleForbidden        = "Forbidden"
	TitleNotFound         = "Not Found"
	TitleConflict         = "Conflict"
	TitleInternalError    = "Internal Server Error"
	TitleAmbiguousCompany = "Ambiguous Company Membership"
	TitleOutOfScope       = "Out Of Delegated Scope"
	TitleSeatLimit        = "Seat Limit Reached"
	TitleLastOwner        = "Last Owner Protected"
	TitleReadOnlyCompany  = "Company Is Read-Only"
	TitleMFARequired      = "MFA Required"
	TitleInviteExpired    = "Invitation Expired"
)

// FieldError represents a validation error for a specific request field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	TraceID  string                 `json:"trace_id,omitempty"`
	Errors   []FieldError           `json:"errors,omitempty"`
	Extra    map[string]interface{} `json:"-"`
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	if p.Detail != "" {
		return p.Detail
	}
	return p.Title
}

// Is matches problems by type URI so handlers can branch with errors.Is.
func (p *ProblemDetails) Is(target error) bool {
	other, ok := target.(*ProblemDetails)
	return ok && other.Type == p.Type
}

// WithTraceID adds a trace ID to the problem details
func (p *ProblemDetails) WithTraceID(traceID string) *ProblemDetails {
	p.TraceID = traceID
	return p
}

// WithFieldErrors attaches per-field validation failures.
func (p *ProblemDetails) WithFieldErrors(errs []FieldError) *ProblemDetails {
	p.Errors = errs
	return p
}

// WithExtra adds an extra field serialized at the top level of the document.
func (p *ProblemDetails) WithExtra(key string, value interface{}) *ProblemDetails {
	if p.Extra == nil {
		p.Extra = make(map[string]interface{})
	}
	p.Extra[key] = value
	return p
}

// MarshalJSON includes extra fields at the top level
func (p *ProblemDetails) MarshalJSON() ([]byte, error) {
	result := make(map[string]interface{})
	result["type"] = p.Type
	result["title"] = p.Title
	result["status"] = p.Status
	if p.Detail != "" {
		result["detail"] = p.Detail
	}
	if p.Instance != "" {
		result["instance"] = p.Instance
	}
	if p.TraceID != "" {
		result["trace_id"] = p.TraceID
	}
	if len(p.Errors) > 0 {
		result["errors"] = p.Errors
	}
	for k, v := range p.Extra {
		result[k] = v
	}
	return json.Marshal(result)
}

// NewProblemDetails creates a generic problem details with all fields
func NewProblemDetails(problemType, title string, status int, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:     problemType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// NewValidationError creates a validation error problem
func NewValidationError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeValidationError, TitleValidationError, http.StatusBadRequest, detail, instance)
}

// NewUnauthorizedError creates an unauthorized error problem
func NewUnauthorizedError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeUnauthorized, TitleUnauthorized, http.StatusUnauthorized, detail, instance)
}

// NewForbiddenError creates a forbidden error problem
func NewForbiddenError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeForbidden, TitleForbidden, http.StatusForbidden, detail, instance)
}

// NewNotFoundError creates a not found error problem
func NewNotFoundError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeNotFound, TitleNotFound, http.StatusNotFound, detail, instance)
}

// NewConflictError creates a conflict error problem
func NewConflictError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeConflict, TitleConflict, http.StatusConflict, detail, instance)
}

// NewInternalError creates an internal server error problem
func NewInternalError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeInternalError, TitleInternalError, http.StatusInternalServerError, detail, instance)
}

// Domain-specific problems

// NewAmbiguousCompanyError is returned when a caller with multiple company
// memberships omits the X-Company-ID header.
func NewAmbiguousCompanyError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeAmbiguousCompany, TitleAmbiguousCompany, http.StatusBadRequest, detail, instance)
}

// NewOutOfScopeError is returned when a mutation falls outside the caller's
// delegated scope.
func NewOutOfScopeError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeOutOfScope, TitleOutOfScope, http.StatusForbidden, detail, instance)
}

// NewSeatLimitError is returned when the company subscription has no free seats.
func NewSeatLimitError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeSeatLimit, TitleSeatLimit, http.StatusUnprocessableEntity, detail, instance)
}

// NewLastOwnerError is returned when a change would leave a company ownerless.
func NewLastOwnerError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeLastOwner, TitleLastOwner, http.StatusConflict, detail, instance)
}

// NewReadOnlyCompanyError is returned when the subscription state blocks writes.
func NewReadOnlyCompanyError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeReadOnlyCompany, TitleReadOnlyCompany, http.StatusPaymentRequired, detail, instance)
}

// NewMFARequiredError creates an MFA required error
func NewMFARequiredError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeMFARequired, TitleMFARequired, http.StatusUnauthorized, detail, instance)
}

// NewInviteExpiredError is returned for stale or consumed invitation tokens.
func NewInviteExpiredError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeInviteExpired, TitleInviteExpired, http.StatusGone, detail, instance)
}
