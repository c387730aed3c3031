package ffi

import (
	"encoding/json"
	"errors"

	"github.com/filecoin-project/sdr-porep/lib/sdr"
)

// Envelope is the JSON document every boundary call produces.
type Envelope struct {
	OK    bool            `json:"ok"`
	Value json.RawMessage `json:"value,omitempty"`
	Kind  string          `json:"kind,omitempty"`
	Error string          `json:"error,omitempty"`
}

var errorKinds = []struct {
	err  error
	name string
}{
	{sdr.ErrInvalidArgument, "InvalidArgument"},
	{sdr.ErrIOFailure, "IOFailure"},
	{sdr.ErrStateViolation, "StateViolation"},
	{sdr.ErrMalformedArtifact, "MalformedArtifact"},
	{sdr.ErrParameterMismatch, "ParameterMismatch"},
}

func errorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}

// wrap runs fn and stores its outcome as an Envelope in the arena.
func (sb *SealCalls) wrap(op string, fn func() (any, error)) Handle {
	v, err := fn()
	recordCall(op, err)

	env := Envelope{OK: err == nil}
	if err != nil {
		env.Kind = errorKind(err)
		env.Error = err.Error()
		log.Warnw("boundary call failed", "op", op, "kind", env.Kind, "error", err)
	} else if v != nil {
		b, merr := json.Marshal(v)
		if merr != nil {
			env = Envelope{Kind: "Internal", Error: merr.Error()}
		} else {
			env.Value = b
		}
	}

	out, _ := json.Marshal(env)
	return sb.arena.Put(out)
}

// DecodeEnvelope parses a buffer produced by a SealCalls method.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(b, &env)
	return env, err
}
