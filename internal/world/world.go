// Package world holds the shared, single-locked state that correlates
// camera observations into tickets and routes them to dispatchers.
//
// Every exported method executes under one exclusive lock spanning the
// whole operation; none of them perform network I/O while holding it —
// outbound delivery is always a non-blocking Outbox.Send, never a direct
// write to a socket.
package world

import (
	"sync"

	"github.com/halvorsen/speedd/internal/metrics"
	"github.com/halvorsen/speedd/internal/transport"
	"github.com/halvorsen/speedd/internal/wire"
)

// observation is one (timestamp, mile) sighting of a plate on a road.
type observation struct {
	timestamp wire.Timestamp
	mile      wire.Mile
}

type obsKey struct {
	road  wire.Road
	plate wire.Plate
}

type dayKey struct {
	plate wire.Plate
	day   wire.Day
}

// World is the shared ledger described in spec.md section 4.4.
type World struct {
	mu sync.Mutex

	observations map[obsKey][]observation
	dispatchers  map[wire.Road][]*transport.Outbox
	pending      map[wire.Road][]wire.TicketMsg
	ticketDays   map[dayKey]struct{}
}

// New returns an empty World.
func New() *World {
	return &World{
		observations: make(map[obsKey][]observation),
		dispatchers:  make(map[wire.Road][]*transport.Outbox),
		pending:      make(map[wire.Road][]wire.TicketMsg),
		ticketDays:   make(map[dayKey]struct{}),
	}
}

// RegisterDispatcher appends out to each road's dispatcher list, then
// drains that road's pending-ticket queue into out in insertion order.
// A send failure while draining (out already torn down) leaves the
// remaining pending tickets queued for the next dispatcher to register.
func (w *World) RegisterDispatcher(roads []wire.Road, out *transport.Outbox) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, road := range roads {
		w.dispatchers[road] = append(w.dispatchers[road], out)
		metrics.SetActiveDispatchers(w.countDispatchersLocked())

		queued := w.pending[road]
		if len(queued) == 0 {
			continue
		}
		kept := queued[:0]
		for _, tk := range queued {
			if err := out.Send(tk); err != nil {
				kept = append(kept, tk)
			}
		}
		if len(kept) == 0 {
			delete(w.pending, road)
		} else {
			w.pending[road] = kept
		}
		metrics.SetPendingTickets(w.countPendingLocked())
	}
}

// UnregisterDispatcher removes the specific out identity from each road's
// dispatcher list. Pending tickets for those roads, if any remain, stay
// queued for the next dispatcher.
func (w *World) UnregisterDispatcher(roads []wire.Road, out *transport.Outbox) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, road := range roads {
		list := w.dispatchers[road]
		for i, d := range list {
			if d == out {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(w.dispatchers, road)
		} else {
			w.dispatchers[road] = list
		}
	}
	metrics.SetActiveDispatchers(w.countDispatchersLocked())
}

// ReportPlate appends a new observation and evaluates a ticket candidate
// against every observation already on record for (camera.Road, plate),
// per the adjudication algorithm in spec.md section 4.4.1.
func (w *World) ReportPlate(camera Camera, plate wire.Plate, timestamp wire.Timestamp) {
	w.mu.Lock()
	defer w.mu.Unlock()

	metrics.IncObservations()
	key := obsKey{road: camera.Road, plate: plate}
	existing := w.observations[key]

	for _, prior := range existing {
		if ticket, ok := adjudicate(camera, plate, prior, observation{timestamp: timestamp, mile: camera.Mile}); ok {
			if w.dayLedgerBlocksLocked(plate, ticket) {
				metrics.IncTicketsDeduped()
				continue
			}
			w.markDayLedgerLocked(plate, ticket)
			metrics.IncTicketsIssued()
			w.routeTicketLocked(ticket)
		}
	}

	w.observations[key] = append(existing, observation{timestamp: timestamp, mile: camera.Mile})
}

// routeTicketLocked sends ticket to the first dispatcher registered for
// its road, if any; otherwise (or if that send fails) it is appended to
// the road's pending queue. Callers must already hold w.mu.
func (w *World) routeTicketLocked(ticket wire.TicketMsg) {
	list := w.dispatchers[ticket.Road]
	if len(list) == 0 {
		w.pending[ticket.Road] = append(w.pending[ticket.Road], ticket)
		metrics.SetPendingTickets(w.countPendingLocked())
		return
	}
	if err := list[0].Send(ticket); err != nil {
		w.pending[ticket.Road] = append(w.pending[ticket.Road], ticket)
		metrics.SetPendingTickets(w.countPendingLocked())
	}
}

func (w *World) dayLedgerBlocksLocked(plate wire.Plate, ticket wire.TicketMsg) bool {
	d1 := wire.DayOf(ticket.Timestamp1)
	d2 := wire.DayOf(ticket.Timestamp2)
	if _, ok := w.ticketDays[dayKey{plate: plate, day: d1}]; ok {
		return true
	}
	if _, ok := w.ticketDays[dayKey{plate: plate, day: d2}]; ok {
		return true
	}
	return false
}

func (w *World) markDayLedgerLocked(plate wire.Plate, ticket wire.TicketMsg) {
	d1 := wire.DayOf(ticket.Timestamp1)
	d2 := wire.DayOf(ticket.Timestamp2)
	for d := d1; d <= d2; d++ {
		w.ticketDays[dayKey{plate: plate, day: d}] = struct{}{}
	}
}

func (w *World) countDispatchersLocked() int {
	n := 0
	for _, list := range w.dispatchers {
		n += len(list)
	}
	return n
}

func (w *World) countPendingLocked() int {
	n := 0
	for _, list := range w.pending {
		n += len(list)
	}
	return n
}
