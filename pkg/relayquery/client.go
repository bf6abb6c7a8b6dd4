// Package relayquery is a one-shot blocking client for the relayer: it
// performs the auth handshake, fetches the TPU socket pair, and can pull a
// bounded number of stream frames. It is meant for tooling and spot checks,
// not for the long-lived proxy stage.
package relayquery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/ChainSafe/gossamer/lib/crypto/sr25519"

	"github.com/stakemesh-labs/relayproxy/internal/auth"
	"github.com/stakemesh-labs/relayproxy/internal/packet"
	"github.com/stakemesh-labs/relayproxy/internal/relayer"
)

// Client wraps the relayer client with a credential obtained at connect time.
// The credential is not refreshed; reconnect when it expires.
type Client struct {
	relayer *relayer.Client
	cell    *auth.TokenCell
}

// Connect authenticates against the auth service and returns a client bound
// to the issued access token.
func Connect(ctx context.Context, authURL, relayerURL string, keypair *sr25519.Keypair, timeout time.Duration) (*Client, error) {
	mgr := auth.NewManager(auth.NewClient(authURL, timeout), auth.NewTokenCell())
	if err := mgr.Bootstrap(ctx, keypair); err != nil {
		return nil, fmt.Errorf("relayquery connect: %w", err)
	}
	cell := mgr.Cell()
	return &Client{
		relayer: relayer.NewClient(relayerURL, cell, timeout),
		cell:    cell,
	}, nil
}

// NewWithCredential skips the handshake and uses an already-issued token,
// e.g. one minted by an operator tool.
func NewWithCredential(relayerURL string, cred auth.Credential, timeout time.Duration) *Client {
	cell := auth.NewTokenCell()
	cell.Store(cred)
	return &Client{
		relayer: relayer.NewClient(relayerURL, cell, timeout),
		cell:    cell,
	}
}

// TpuSockets fetches the relayer's advertised TPU and forwarding sockets.
func (c *Client) TpuSockets(ctx context.Context) (tpu, tpuFwd netip.AddrPort, err error) {
	cfg, err := c.relayer.GetTpuConfigs(ctx)
	if err != nil {
		return netip.AddrPort{}, netip.AddrPort{}, err
	}
	tpu, err = socketAddr(cfg.Tpu, "tpu")
	if err != nil {
		return netip.AddrPort{}, netip.AddrPort{}, err
	}
	tpuFwd, err = socketAddr(cfg.TpuForward, "tpu_fwd")
	if err != nil {
		return netip.AddrPort{}, netip.AddrPort{}, err
	}
	return tpu, tpuFwd, nil
}

func socketAddr(sc *relayer.SocketConfig, name string) (netip.AddrPort, error) {
	if sc == nil {
		return netip.AddrPort{}, fmt.Errorf("relayer omitted the %s socket", name)
	}
	addr, err := netip.ParseAddr(sc.IP)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("relayer sent a bad %s address %q: %w", name, sc.IP, err)
	}
	return netip.AddrPortFrom(addr, sc.Port), nil
}

// PullBatches subscribes to the packet stream and collects up to max batches,
// returning early on context cancellation or an orderly stream end. Heartbeat
// and empty frames are skipped.
func (c *Client) PullBatches(ctx context.Context, max int) ([]packet.Batch, error) {
	stream, err := c.relayer.SubscribePackets(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	batches := make([]packet.Batch, 0, max)
	for len(batches) < max {
		msg, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return batches, nil
			}
			return batches, err
		}
		if msg.Batch == nil {
			continue
		}
		batches = append(batches, packet.BatchFromWire(*msg.Batch))
	}
	return batches, nil
}
