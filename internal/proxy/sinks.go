package proxy

import (
	"context"

	"github.com/stakemesh-labs/relayproxy/internal/packet"
)

// Sinks are the downstream collaborators packets and heartbeats are handed
// off to. Done is closed by the downstream owner when it stops consuming; a
// send that loses the race against Done is a fatal forwarding error for the
// whole connection, never retried locally.
type Sinks struct {
	// Heartbeats receives the connection's HeartbeatEvent on every heartbeat.
	Heartbeats chan<- HeartbeatEvent

	// Packets receives untrusted batches headed for signature verification.
	Packets chan<- packet.Batch

	// VerifiedPackets receives trusted batches that bypass verification,
	// paired with an empty stats slot.
	VerifiedPackets chan<- packet.VerifiedBatch

	// Done signals that the downstream pipeline has shut down.
	Done <-chan struct{}
}

func (s Sinks) forwardHeartbeat(ctx context.Context, ev HeartbeatEvent) error {
	select {
	case s.Heartbeats <- ev:
		return nil
	case <-s.Done:
		return ErrHeartbeatChannel
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s Sinks) forwardPackets(ctx context.Context, batch packet.Batch) error {
	select {
	case s.Packets <- batch:
		return nil
	case <-s.Done:
		return ErrPacketForward
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s Sinks) forwardVerified(ctx context.Context, vb packet.VerifiedBatch) error {
	select {
	case s.VerifiedPackets <- vb:
		return nil
	case <-s.Done:
		return ErrPacketForward
	case <-ctx.Done():
		return ctx.Err()
	}
}
