// Package shoperr defines the typed errors the settlement engine reports.
package shoperr

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected operation so callers can map it to a response
// without parsing the message.
type Kind string

const (
	KindValidation              Kind = "validation"
	KindInvalidTransition       Kind = "invalid_transition"
	KindInvalidRefundTransition Kind = "invalid_refund_transition"
	KindVoucherIneligible       Kind = "voucher_ineligible"
	KindPriceChanged            Kind = "price_changed"
	KindConflict                Kind = "conflict"
	KindNotFound                Kind = "not_found"
	KindForbidden               Kind = "forbidden"
)

// Error is a recoverable domain error. Rejected operations leave all entities
// unchanged, so every Error is safe to surface and retry.
type Error struct {
	Kind   Kind
	Reason string
	Field  string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Reason, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Is makes errors.Is match on Kind, so callers can test against a sentinel
// like shoperr.Conflict("") without caring about the reason text.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

func Validation(reason string) *Error {
	return &Error{Kind: KindValidation, Reason: reason}
}

func MissingField(field string) *Error {
	return &Error{Kind: KindValidation, Reason: "required field is missing", Field: field}
}

func InvalidTransition(reason string) *Error {
	return &Error{Kind: KindInvalidTransition, Reason: reason}
}

func InvalidRefundTransition(reason string) *Error {
	return &Error{Kind: KindInvalidRefundTransition, Reason: reason}
}

func VoucherIneligible(reason string) *Error {
	return &Error{Kind: KindVoucherIneligible, Reason: reason}
}

func PriceChanged(reason string) *Error {
	return &Error{Kind: KindPriceChanged, Reason: reason}
}

func Conflict(reason string) *Error {
	return &Error{Kind: KindConflict, Reason: reason}
}

func NotFound(reason string) *Error {
	return &Error{Kind: KindNotFound, Reason: reason}
}

func Forbidden(reason string) *Error {
	return &Error{Kind: KindForbidden, Reason: reason}
}

// KindOf returns the Kind of err if it is a domain error, or "" otherwise.
func KindOf(err error) Kind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return ""
}
