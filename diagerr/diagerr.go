// Package diagerr represents the four semantic error kinds named in §7: not
// exception types, just enough structure for the batch loop to decide
// whether a session failure halts the whole run or is merely recorded.
package diagerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller should react to it.
type Kind int

const (
	// ConfigError is fatal before any session work starts: an ill-formed
	// scale schedule, oracle_num_speakers with no manifest num_speakers,
	// an unknown mc_late_fusion_mode.
	ConfigError Kind = iota
	// DataError is fatal for the offending session only: a duplicate
	// uniq_id, NaN in MSDD predictions, all channels silent, mismatched
	// cluster-label/timestamp lengths.
	DataError
	// RecoverableAnomaly is logged and worked around: empty VAD for one
	// session, a missing RTTM reference, a GPU provider falling back to
	// CPU.
	RecoverableAnomaly
	// InvariantViolation indicates a bug in the caller (e.g. an
	// unsorted-range assertion in the intervals package) and must
	// surface immediately with enough context to find the session and
	// stage.
	InvariantViolation
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "config_error"
	case DataError:
		return "data_error"
	case RecoverableAnomaly:
		return "recoverable_anomaly"
	case InvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with its Kind and the session/stage it
// occurred in, so errors.As lets the batch loop branch on severity without
// parsing message strings.
type Error struct {
	Kind      Kind
	SessionID string
	Stage     string
	Err       error
}

func (e *Error) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("%s[%s]: %v", e.Kind, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s[%s/%s]: %v", e.Kind, e.SessionID, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds a *Error of the given kind, attributing it to sessionID and
// stage for the batch loop's failure record.
func Wrap(kind Kind, sessionID, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, SessionID: sessionID, Stage: stage, Err: err}
}

// Wrapf is Wrap with a formatted message wrapping the cause via %w.
func Wrapf(kind Kind, sessionID, stage, format string, args ...any) error {
	return &Error{Kind: kind, SessionID: sessionID, Stage: stage, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the Kind of err if it (or something it wraps) is a *Error,
// and whether such an error was found at all.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

// Fatal reports whether err should halt the entire batch run rather than
// just the offending session (§7: only ConfigError is run-fatal).
func Fatal(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == ConfigError
}
