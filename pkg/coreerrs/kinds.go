// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package coreerrs defines the uniform error-kind taxonomy the core
// surfaces to the host, regardless of whether the error originated in the
// request pipeline, the transfer engine, or the sync reconciler. The host
// is never handed a raw HTTP status or JSON value, only a Kind.
package coreerrs

import "github.com/zeebo/errs"

// Class is the package-level error class.
var Class = errs.Class("core")

// Kind categorizes a failure: callers switch on Kind, never on error
// strings.
type Kind int

// Error kinds, grouped the way groups them.
const (
	KindUnknown Kind = iota
	KindNetworkTransient
	KindRateLimit
	KindAuthInvalid
	KindQuota
	KindCrypto
	KindLocalFSTransient
	KindLocalFSPermanent
	KindProtocolViolation
)

func (k Kind) String() string {
	switch k {
	case KindNetworkTransient:
		return "network-transient"
	case KindRateLimit:
		return "rate-limit"
	case KindAuthInvalid:
		return "auth-invalid"
	case KindQuota:
		return "quota"
	case KindCrypto:
		return "crypto"
	case KindLocalFSTransient:
		return "local-fs-transient"
	case KindLocalFSPermanent:
		return "local-fs-permanent"
	case KindProtocolViolation:
		return "protocol-violation"
	default:
		return "unknown"
	}
}

// Retryable reports whether an error of this kind should be retried by the
// pipeline's backoff rather than surfaced to the host as terminal.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetworkTransient, KindRateLimit, KindLocalFSTransient:
		return true
	default:
		return false
	}
}

// Error is a coreerrs-wrapped error carrying a Kind, the type every
// component-facing API returns instead of a bare error.
type Error struct {
	Kind Kind
	Code string // the original server/command error code, e.g. "ESID", for logging only
	err  error
}

// New creates an Error of the given kind wrapping err.
func New(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, err: err}
}

func (e *Error) Error() string {
	if e.err == nil {
		return Class.New("%s (%s)", e.Kind, e.Code).Error()
	}
	return Class.New("%s (%s): %v", e.Kind, e.Code, e.err).Error()
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error { return e.err }

// Well-known server/command error codes, mapped to kinds in FromCode.
const (
	CodeAgain     = "EAGAIN"
	CodeRateLimit = "ERATELIMIT"
	CodeSessionID = "ESID"
	CodeTooMany   = "ETOOMANY"
	CodeBlocked   = "EBLOCKED"
	CodeSSL       = "ESSL"
	CodeOverQuota = "EOVERQUOTA"
	CodePaywall   = "EPAYWALL"
)

// FromCode maps a server/command error code (as named in and ) to its Kind.
func FromCode(code string) Kind {
	switch code {
	case CodeAgain, CodeRateLimit:
		return KindRateLimit
	case CodeSessionID, CodeBlocked, CodeSSL:
		return KindAuthInvalid
	case CodeOverQuota, CodePaywall:
		return KindQuota
	case CodeTooMany:
		return KindProtocolViolation
	default:
		return KindUnknown
	}
}
