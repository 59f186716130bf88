package quote

import (
	"errors"
	"fmt"
)

// Reason classifies a provider failure for caller-side messaging.
type Reason string

const (
	ReasonNetwork  Reason = "network"
	ReasonQuota    Reason = "quota"
	ReasonProvider Reason = "provider"
	ReasonParse    Reason = "parse"
)

var (
	// ErrNetwork matches transport failures. The client does not retry them.
	ErrNetwork = errors.New("provider unreachable")
	// ErrQuotaExceeded matches "too many requests" once retries are exhausted.
	ErrQuotaExceeded = errors.New("provider quota exceeded")
	// ErrProvider matches application-level error payloads.
	ErrProvider = errors.New("provider returned an error")
	// ErrParse matches response bodies that could not be decoded into rates.
	ErrParse = errors.New("provider response could not be parsed")
)

// Error is the single failure shape surfaced by Client. Msg is already redacted.
type Error struct {
	Reason Reason
	Status int
	Msg    string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("twelvedata %s error (%d): %s", e.Reason, e.Status, e.Msg)
	}
	return fmt.Sprintf("twelvedata %s error: %s", e.Reason, e.Msg)
}

// Is lets callers match on the sentinel for each reason.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Reason == ReasonNetwork
	case ErrQuotaExceeded:
		return e.Reason == ReasonQuota
	case ErrProvider:
		return e.Reason == ReasonProvider
	case ErrParse:
		return e.Reason == ReasonParse
	}
	return false
}

// ReasonOf extracts the failure reason, or "" when err did not come from the client.
func ReasonOf(err error) Reason {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Reason
	}
	return ""
}
