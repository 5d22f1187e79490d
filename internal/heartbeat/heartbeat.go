// Package heartbeat runs the per-connection heartbeat scheduler requested
// by a WantHeartbeat message.
package heartbeat

import (
	"time"

	"github.com/halvorsen/speedd/internal/metrics"
	"github.com/halvorsen/speedd/internal/transport"
	"github.com/halvorsen/speedd/internal/wire"
)

// Run posts a Heartbeat message into out every interval deciseconds (tenths
// of a second, per the WantHeartbeat wire format) until out is closed. It
// blocks the calling goroutine, so callers run it in its own goroutine.
//
// interval 0 means "no heartbeats"; Run returns immediately in that case.
// A session accepts WantHeartbeat at most once (a second one is a protocol
// error), so a connection never has more than one Run.
func Run(interval uint32, out *transport.Outbox) {
	if interval == 0 {
		return
	}

	period := time.Duration(interval) * 100 * time.Millisecond
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := out.Send(wire.HeartbeatMsg{}); err != nil {
				return
			}
			metrics.IncHeartbeat()
		case <-out.Done():
			return
		}
	}
}
