package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/halvorsen/speedd/internal/metrics"
	"github.com/halvorsen/speedd/internal/wire"
)

// startWriter launches the goroutine draining sess's Outbox (tickets,
// heartbeats, the terminal Error frame) onto conn. It exits once the
// Outbox is closed and fully drained, matching Outbox's documented
// contract.
func (s *Server) startWriter(ctx context.Context, conn net.Conn, sess *session, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = conn.Close()
			s.totalDisconnected.Add(1)
			logger.Info("client_disconnected")
		}()

		for {
			msg, ok := sess.out.Recv(ctx)
			if !ok {
				return
			}
			if err := wire.Encode(conn, msg); err != nil {
				wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
				metrics.IncError(mapErrToMetric(wrap))
				return
			}
		}
	}()
}
