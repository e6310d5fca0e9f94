package telegram

import (
	"errors"
	"strings"

	"subroll/pkg/subroll"

	"github.com/gotd/td/tgerr"
)

// mapTelegramOutboundError wraps a failed RPC in subroll.OutboundError and
// counts it. Request validation errors pass through unchanged.
func mapTelegramOutboundError(
	operation subroll.OutboundOperation,
	sink subroll.EventSink,
	err error,
) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, subroll.ErrInvalidOutboundRequest) {
		return err
	}

	mapped := &subroll.OutboundError{
		Operation: operation,
		Kind:      subroll.OutboundErrorKindUnknown,
		Platform:  sink.Platform,
		SinkID:    sink.ID,
		Cause:     err,
	}
	if rpcErr, ok := tgerr.As(err); ok {
		mapped.Code = rpcErr.Code
		mapped.Type = rpcErr.Type
		mapped.Kind = rpcErrorKind(rpcErr)
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		mapped.Kind = subroll.OutboundErrorKindRateLimited
		mapped.RetryAfter = wait
	}
	outboundFailures.WithLabelValues(string(operation), string(mapped.Kind)).Inc()

	return mapped
}

// rpcErrorKind follows MTProto error code classes: 303 is a DC migration,
// 4xx are caller errors except flood limits, 5xx are server-side.
func rpcErrorKind(rpcErr *tgerr.Error) subroll.OutboundErrorKind {
	switch {
	case rpcErr.Code == 420 || rpcErr.Code == 429 || strings.Contains(strings.ToUpper(rpcErr.Type), "FLOOD"):
		return subroll.OutboundErrorKindRateLimited
	case rpcErr.Code == 303 || rpcErr.Code >= 500:
		return subroll.OutboundErrorKindTemporary
	case rpcErr.Code >= 400:
		return subroll.OutboundErrorKindPermanent
	default:
		return subroll.OutboundErrorKindUnknown
	}
}
