package sdr

import (
	"errors"

	"golang.org/x/xerrors"
)

// Error classes. Every error returned by this package matches exactly one of
// them with errors.Is.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrIOFailure         = errors.New("io failure")
	ErrStateViolation    = errors.New("state violation")
	ErrMalformedArtifact = errors.New("malformed artifact")
	ErrParameterMismatch = errors.New("parameter mismatch")
)

var (
	ErrInvalidNodeCount    = classed(ErrInvalidArgument, "invalid node count")
	ErrMalformedInput      = classed(ErrInvalidArgument, "malformed input")
	ErrChallengeOutOfRange = classed(ErrInvalidArgument, "challenge out of range")

	ErrDirectoryUnavailable = classed(ErrIOFailure, "directory unavailable")
	ErrPermissionDenied     = classed(ErrIOFailure, "permission denied")

	ErrAlreadySealed   = classed(ErrStateViolation, "already sealed")
	ErrUnsealedReplica = classed(ErrStateViolation, "replica is not sealed")
	ErrStoreBusy       = classed(ErrStateViolation, "store is in use")

	ErrMalformedProof = classed(ErrMalformedArtifact, "malformed proof")

	ErrGraphConstruction = classed(ErrParameterMismatch, "graph construction")
)

type classError struct {
	class error
	msg   string
}

func classed(class error, msg string) error {
	return &classError{class: class, msg: msg}
}

func (e *classError) Error() string { return e.msg }

func (e *classError) Unwrap() error { return e.class }

// OpError records the operation and path that failed.
type OpError struct {
	Op   string
	Path string
	// Kind is one of the Err* values above.
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	s := e.Op
	if e.Path != "" {
		s += " " + e.Path
	}
	s += ": " + e.Kind.Error()
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opErr(op, path string, kind, err error) error {
	return &OpError{Op: op, Path: path, Kind: kind, Err: err}
}

func ioErr(op, path string, err error) error {
	return opErr(op, path, ErrIOFailure, err)
}

// wrapMismatch reports an expected/actual pair under kind.
func wrapMismatch(kind error, what string, expected, actual any) error {
	return xerrors.Errorf("%s: expected %v, got %v: %w", what, expected, actual, kind)
}
