package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/halvorsen/speedd/internal/metrics"
	"github.com/halvorsen/speedd/internal/transport"
	"github.com/halvorsen/speedd/internal/wire"
	"golang.org/x/time/rate"
)

// startReader launches the goroutine decoding inbound frames from conn and
// driving sess's state machine. It owns sess (the only goroutine that
// mutates it) and signals the writer to stop via out.Close when done.
func (s *Server) startReader(ctx context.Context, conn net.Conn, sess *session, logger *slog.Logger, limiter *rate.Limiter) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer sess.close()
		defer sess.out.Close()

		buf := new(bytes.Buffer)
		readBuf := make([]byte, 4096)

		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))

			msg, err := wire.Decode(buf)
			switch {
			case err == nil:
				if limiter != nil && !throttle(ctx, limiter) {
					return
				}
				if herr := sess.handle(msg); herr != nil {
					metrics.IncError(mapErrToMetric(herr))
					sendError(sess.out, herr)
					logger.Warn("protocol_error", "error", herr)
					return
				}
				continue

			case errors.Is(err, wire.ErrIncomplete):
				// fall through to read more bytes below

			default:
				metrics.IncError(mapErrToMetric(fmt.Errorf("%w: %v", ErrProtocol, err)))
				sendError(sess.out, err)
				logger.Warn("decode_error", "error", err)
				return
			}

			n, rerr := conn.Read(readBuf)
			if n > 0 {
				buf.Write(readBuf[:n])
			}
			if rerr != nil {
				if errors.Is(rerr, io.EOF) || errors.Is(rerr, net.ErrClosed) {
					return
				}
				if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
					wrap := fmt.Errorf("%w: idle timeout", ErrConnRead)
					metrics.IncError(mapErrToMetric(wrap))
					logger.Warn("idle_timeout_disconnect", "timeout", s.readDeadline)
					return
				}
				wrap := fmt.Errorf("%w: %v", ErrConnRead, rerr)
				metrics.IncError(mapErrToMetric(wrap))
				return
			}
		}
	}()
}

// throttle blocks the reader until limiter admits the next frame, counting
// it as rate-limited whenever a wait was actually required. This is a
// backpressure path, not a drop path: the connection's socket simply stops
// being read from until a token is available. It returns false if ctx is
// done before a token becomes available, signaling the caller to stop.
func throttle(ctx context.Context, limiter *rate.Limiter) bool {
	res := limiter.Reserve()
	if !res.OK() {
		return true
	}
	delay := res.Delay()
	if delay <= 0 {
		return true
	}
	metrics.IncRateLimited()
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		res.Cancel()
		return false
	}
}

// sendError queues a single Error frame onto the session's outbox so it is
// written by the same goroutine that owns the connection's writes,
// best-effort; a failure here means the outbox is already closed and the
// connection is being torn down anyway.
func sendError(out *transport.Outbox, cause error) {
	_ = out.Send(wire.ErrorMsg{Reason: cause.Error()})
}
