package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/ChainSafe/gossamer/lib/crypto/sr25519"
	"github.com/rs/zerolog/log"

	"github.com/stakemesh-labs/relayproxy/internal/auth"
	"github.com/stakemesh-labs/relayproxy/internal/packet"
	"github.com/stakemesh-labs/relayproxy/internal/relayer"
	"github.com/stakemesh-labs/relayproxy/pkg/signature"
)

type streamResult struct {
	msg relayer.StreamMessage
	err error
}

// consume runs the streaming loop for one live connection: resolve the TPU
// socket pair, subscribe, then race stream messages against the heartbeat
// watchdog, the metrics tick, and the credential maintenance tick until a
// fatal condition hands control back to the supervisor.
func (s *Stage) consume(ctx context.Context, cfg Config, mgr *auth.Manager, keypair *sr25519.Keypair, client *relayer.Client) error {
	heartbeatEvent, err := resolveHeartbeatEvent(ctx, client)
	if err != nil {
		return err
	}

	stream, err := client.SubscribePackets(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayerConnectionError, err)
	}
	defer stream.Close()

	// Receiver goroutine merges the stream into the select loop. Closing the
	// stream on exit unblocks a pending Recv.
	loopDone := make(chan struct{})
	defer close(loopDone)

	msgCh := make(chan streamResult)
	go func() {
		for {
			msg, err := stream.Recv()
			select {
			case msgCh <- streamResult{msg: msg, err: err}:
			case <-loopDone:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	// Rotation must complete at least one maintenance cycle before expiry.
	lookahead := s.intervals.MaintenanceInterval * 5 / 4

	heartbeatCheck := time.NewTicker(cfg.ExpectedHeartbeatInterval)
	defer heartbeatCheck.Stop()
	metricsTick := time.NewTicker(s.intervals.MetricsInterval)
	defer metricsTick.Stop()
	maintenanceTick := time.NewTicker(s.intervals.MaintenanceInterval)
	defer maintenanceTick.Stop()

	lastHeartbeat := time.Now()
	var stats ConnectionStats

	connectedIdentity := signature.ToSS58Address(keypair)

	log.Info().
		Str("url", client.BaseURL).
		Str("identity", connectedIdentity).
		Msg("connected to packet stream")

	for {
		select {
		case res := <-msgCh:
			if res.err != nil {
				// A canceled context tears the stream down from our side;
				// that is shutdown, not a relayer failure.
				if ctx.Err() != nil {
					return nil
				}
				if errors.Is(res.err, io.EOF) {
					return ErrStreamDisconnected
				}
				return fmt.Errorf("%w: %v", ErrStreamDisconnected, res.err)
			}
			if err := s.handleMessage(ctx, res.msg, cfg, heartbeatEvent, &lastHeartbeat, &stats); err != nil {
				return err
			}

		case <-heartbeatCheck.C:
			if time.Since(lastHeartbeat) > cfg.OldestAllowedHeartbeat {
				return ErrHeartbeatExpired
			}

		case <-metricsTick.C:
			if s.OnStats != nil {
				s.OnStats(stats)
			}
			stats.report()
			stats = ConnectionStats{}

		case <-maintenanceTick.C:
			current, err := s.ident.Current()
			if err != nil {
				return fmt.Errorf("re-read signing identity: %w", err)
			}
			// The relayer authorized the identity used at connect time only.
			if signature.ToSS58Address(current) != connectedIdentity {
				return ErrIdentityChanged
			}

			mctx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
			err = mgr.MaybeRefresh(mctx, current, lookahead)
			cancel()
			if err != nil {
				return err
			}

		case <-ctx.Done():
			return nil
		}
	}
}

// handleMessage dispatches one stream frame: count empties, route packet
// batches by the trust flag, record and replay heartbeats.
func (s *Stage) handleMessage(ctx context.Context, msg relayer.StreamMessage, cfg Config, heartbeatEvent HeartbeatEvent, lastHeartbeat *time.Time, stats *ConnectionStats) error {
	switch {
	case msg.Batch != nil:
		batch := packet.BatchFromWire(*msg.Batch)
		stats.Packets += uint64(len(batch))

		if cfg.TrustPackets {
			return s.sinks.forwardVerified(ctx, packet.VerifiedBatch{
				Batches: []packet.Batch{batch},
				Stats:   nil,
			})
		}
		return s.sinks.forwardPackets(ctx, batch)

	case msg.Heartbeat != nil:
		stats.Heartbeats++
		*lastHeartbeat = time.Now()
		return s.sinks.forwardHeartbeat(ctx, heartbeatEvent)

	default:
		stats.EmptyMessages++
	}
	return nil
}

// resolveHeartbeatEvent fetches the relayer's advertised socket pair. The
// result is valid for the lifetime of this connection only.
func resolveHeartbeatEvent(ctx context.Context, client *relayer.Client) (HeartbeatEvent, error) {
	cfgResp, err := client.GetTpuConfigs(ctx)
	if err != nil {
		return HeartbeatEvent{}, fmt.Errorf("%w: %v", ErrRelayerConnectionError, err)
	}

	tpu, err := parseSocket(cfgResp.Tpu, "tpu")
	if err != nil {
		return HeartbeatEvent{}, err
	}
	tpuForward, err := parseSocket(cfgResp.TpuForward, "tpu_fwd")
	if err != nil {
		return HeartbeatEvent{}, err
	}

	return HeartbeatEvent{
		TpuSocket:        tpu,
		TpuForwardSocket: tpuForward,
	}, nil
}

func parseSocket(sc *relayer.SocketConfig, name string) (netip.AddrPort, error) {
	if sc == nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %s", ErrMissingTpuSocket, name)
	}
	addr, err := netip.ParseAddr(sc.IP)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %s %q: %v", ErrBadTpuSocket, name, sc.IP, err)
	}
	return netip.AddrPortFrom(addr, sc.Port), nil
}
