package subroll

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// OutboundOperation names the sink method that failed.
type OutboundOperation string

// Outbound operations, one per SinkDispatcher method.
const (
	OutboundOperationSendMessage    OutboundOperation = "send_message"
	OutboundOperationEditMessage    OutboundOperation = "edit_message"
	OutboundOperationDeleteMessage  OutboundOperation = "delete_message"
	OutboundOperationSetReaction    OutboundOperation = "set_reaction"
	OutboundOperationClearReactions OutboundOperation = "clear_reactions"
)

// OutboundErrorKind tells callers whether a failed operation may succeed
// if repeated.
type OutboundErrorKind string

const (
	// OutboundErrorKindRateLimited means the platform throttled the call.
	// RetryAfter holds its hint when one was sent.
	OutboundErrorKindRateLimited OutboundErrorKind = "rate_limited"
	// OutboundErrorKindTemporary means a transient transport or server fault.
	OutboundErrorKindTemporary OutboundErrorKind = "temporary"
	// OutboundErrorKindPermanent means the request itself was rejected.
	OutboundErrorKindPermanent OutboundErrorKind = "permanent"
	OutboundErrorKindUnknown   OutboundErrorKind = "unknown"
)

// OutboundError is returned by sink drivers for failed platform calls.
// Code and Type carry the platform's own error code and token when known.
type OutboundError struct {
	Operation  OutboundOperation
	Kind       OutboundErrorKind
	Platform   Platform
	SinkID     string
	RetryAfter time.Duration
	Code       int
	Type       string
	Cause      error
}

// Error renders the populated fields as key=value pairs followed by the cause.
func (e *OutboundError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString("outbound error")
	sep := ": "
	field := func(key, value string) {
		if value = strings.TrimSpace(value); value == "" {
			return
		}
		b.WriteString(sep + key + "=" + value)
		sep = " "
	}
	field("operation", string(e.Operation))
	field("kind", string(e.Kind))
	field("platform", string(e.Platform))
	field("sink_id", e.SinkID)
	if e.RetryAfter > 0 {
		field("retry_after", e.RetryAfter.String())
	}
	if e.Code != 0 {
		field("code", strconv.Itoa(e.Code))
	}
	field("type", e.Type)
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}

	return b.String()
}

// Unwrap returns the wrapped root cause.
func (e *OutboundError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Cause
}

// AsOutboundError finds the first OutboundError in err's chain.
func AsOutboundError(err error) (*OutboundError, bool) {
	var outboundErr *OutboundError
	if err == nil || !errors.As(err, &outboundErr) || outboundErr == nil {
		return nil, false
	}

	return outboundErr, true
}

// AsOutboundRateLimit reports whether err is a rate-limit failure and the
// platform's retry hint, which is zero when none was given.
func AsOutboundRateLimit(err error) (time.Duration, bool) {
	outboundErr, ok := AsOutboundError(err)
	if !ok || outboundErr.Kind != OutboundErrorKindRateLimited {
		return 0, false
	}

	return outboundErr.RetryAfter, true
}

// Retryable reports whether the failure is worth retrying later.
func (e *OutboundError) Retryable() bool {
	if e == nil {
		return false
	}

	return e.Kind == OutboundErrorKindRateLimited || e.Kind == OutboundErrorKindTemporary
}
