package server

import (
	"errors"

	"github.com/halvorsen/speedd/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrListen         = errors.New("listen")
	ErrAccept         = errors.New("accept")
	ErrConnRead       = errors.New("conn_read")
	ErrConnWrite      = errors.New("conn_write")
	ErrContext        = errors.New("context_cancelled")
	ErrProtocol       = errors.New("protocol_violation")
	ErrDoubleIdentify = errors.New("already_identified")
	ErrWrongRole      = errors.New("message_not_valid_for_role")
)

// mapErrToMetric maps wrapped sentinel errors to metrics labels.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrConnRead):
		return metrics.ErrTCPRead
	case errors.Is(err, ErrConnWrite):
		return metrics.ErrTCPWrite
	case errors.Is(err, ErrDoubleIdentify):
		return metrics.ErrDoubleIdentify
	case errors.Is(err, ErrWrongRole):
		return metrics.ErrWrongRoleForMsg
	case errors.Is(err, ErrProtocol):
		return metrics.ErrProtocol
	case errors.Is(err, ErrAccept), errors.Is(err, ErrListen):
		return metrics.ErrTCPRead
	case errors.Is(err, ErrContext):
		return "context"
	default:
		return "other"
	}
}
