package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ChainSafe/gossamer/lib/crypto/sr25519"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"

	"github.com/stakemesh-labs/relayproxy/internal/auth"
	"github.com/stakemesh-labs/relayproxy/internal/config"
	"github.com/stakemesh-labs/relayproxy/internal/identity"
	"github.com/stakemesh-labs/relayproxy/internal/packet"
)

func TestNextBackoff(t *testing.T) {
	step := time.Second

	tests := []struct {
		name    string
		current time.Duration
		want    time.Duration
	}{
		{name: "first failure", current: 0, want: 1 * time.Second},
		{name: "third failure", current: 2 * time.Second, want: 3 * time.Second},
		{name: "at cap", current: 10 * time.Second, want: 10 * time.Second},
		{name: "approaching cap", current: 9 * time.Second, want: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextBackoff(tt.current, step))
		})
	}

	// N consecutive failures from zero give N steps, capped at 10.
	backoff := time.Duration(0)
	for n := 1; n <= 15; n++ {
		backoff = nextBackoff(backoff, step)
		want := time.Duration(n) * time.Second
		if n > 10 {
			want = 10 * time.Second
		}
		assert.Equal(t, want, backoff, "failure %d", n)
	}
}

// relayerFixture is an in-process auth service + relayer used to drive the
// supervisor and consumer end to end.
type relayerFixture struct {
	t       *testing.T
	keypair *sr25519.Keypair
	ident   *identity.StaticProvider

	authTS  *httptest.Server
	relayTS *httptest.Server

	heartbeats chan HeartbeatEvent
	packets    chan packet.Batch
	verified   chan packet.VerifiedBatch
	done       chan struct{}

	// relayer behavior
	tpuBody        string
	frames         []string
	heartbeatEvery time.Duration
	closeStream    bool

	tokenCalls   atomic.Int32
	refreshCalls atomic.Int32

	mu sync.Mutex
}

func newRelayerFixture(t *testing.T) *relayerFixture {
	keypair, err := sr25519.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	f := &relayerFixture{
		t:          t,
		keypair:    keypair,
		ident:      identity.NewStaticProvider(keypair),
		heartbeats: make(chan HeartbeatEvent, 64),
		packets:    make(chan packet.Batch, 64),
		verified:   make(chan packet.VerifiedBatch, 64),
		done:       make(chan struct{}),
		tpuBody:    `{"tpu":{"ip":"10.1.2.3","port":8001},"tpuForward":{"ip":"10.1.2.3","port":8002}}`,
	}

	f.authTS = httptest.NewServer(http.HandlerFunc(f.authHandler))
	t.Cleanup(f.authTS.Close)
	f.relayTS = httptest.NewServer(http.HandlerFunc(f.relayHandler))
	t.Cleanup(f.relayTS.Close)

	return f
}

func (f *relayerFixture) authHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	now := time.Now()

	switch r.URL.Path {
	case "/auth/challenge":
		w.Write([]byte(`{"challenge":"f00d"}`))
	case "/auth/tokens":
		f.tokenCalls.Add(1)
		resp, _ := sonic.Marshal(auth.GenerateTokensResponse{
			AccessToken:  &auth.Token{Value: "access", ExpiresAt: now.Add(time.Hour).Unix()},
			RefreshToken: &auth.Token{Value: "refresh", ExpiresAt: now.Add(24 * time.Hour).Unix()},
		})
		w.Write(resp)
	case "/auth/refresh":
		f.refreshCalls.Add(1)
		resp, _ := sonic.Marshal(auth.RefreshAccessTokenResponse{
			AccessToken: &auth.Token{Value: "access-r", ExpiresAt: now.Add(time.Hour).Unix()},
		})
		w.Write(resp)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *relayerFixture) relayHandler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/relayer/tpu-configs":
		w.Header().Set("Content-Type", "application/json")
		f.mu.Lock()
		body := f.tpuBody
		f.mu.Unlock()
		w.Write([]byte(body))

	case "/relayer/packets/subscribe":
		w.Header().Set("Content-Type", "application/x-ndjson")
		fl, ok := w.(http.Flusher)
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		fl.Flush()

		f.mu.Lock()
		frames := f.frames
		heartbeatEvery := f.heartbeatEvery
		closeStream := f.closeStream
		f.mu.Unlock()

		for _, frame := range frames {
			fmt.Fprintln(w, frame)
			fl.Flush()
		}
		if closeStream {
			return
		}

		if heartbeatEvery > 0 {
			tick := time.NewTicker(heartbeatEvery)
			defer tick.Stop()
			for {
				select {
				case <-r.Context().Done():
					return
				case <-tick.C:
					fmt.Fprintln(w, `{"heartbeat":{"count":1}}`)
					fl.Flush()
				}
			}
		}
		<-r.Context().Done()

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *relayerFixture) stage(trustPackets bool, intervals *config.IntervalConfig, hb, oldest time.Duration) *Stage {
	cfg := func() (Config, error) {
		return Config{
			AuthServiceURL:            f.authTS.URL,
			RelayerURL:                f.relayTS.URL,
			ExpectedHeartbeatInterval: hb,
			OldestAllowedHeartbeat:    oldest,
			TrustPackets:              trustPackets,
			ConnectionTimeout:         5 * time.Second,
		}, nil
	}
	sinks := Sinks{
		Heartbeats:      f.heartbeats,
		Packets:         f.packets,
		VerifiedPackets: f.verified,
		Done:            f.done,
	}
	return NewStage(cfg, f.ident, sinks, intervals)
}

func testIntervals() *config.IntervalConfig {
	return &config.IntervalConfig{
		MetricsInterval:     50 * time.Millisecond,
		MaintenanceInterval: time.Hour,
	}
}

func TestWatchdogExpiresWithoutHeartbeats(t *testing.T) {
	f := newRelayerFixture(t)
	s := f.stage(false, testIntervals(), 20*time.Millisecond, 60*time.Millisecond)

	err := s.connectAuthAndStream(context.Background())
	if !errors.Is(err, ErrHeartbeatExpired) {
		t.Fatalf("expected ErrHeartbeatExpired, got %v", err)
	}
}

func TestWatchdogSurvivesTimelyHeartbeats(t *testing.T) {
	f := newRelayerFixture(t)
	f.heartbeatEvery = 20 * time.Millisecond
	s := f.stage(false, testIntervals(), 20*time.Millisecond, 200*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.connectAuthAndStream(ctx) }()

	time.Sleep(300 * time.Millisecond)
	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("connection should survive timely heartbeats until shutdown, got %v", err)
	}
	if len(f.heartbeats) == 0 {
		t.Fatal("expected heartbeat events to be forwarded")
	}
	ev := <-f.heartbeats
	if ev.TpuSocket.String() != "10.1.2.3:8001" || ev.TpuForwardSocket.String() != "10.1.2.3:8002" {
		t.Fatalf("unexpected heartbeat event: %+v", ev)
	}
}

func TestStreamDisconnected(t *testing.T) {
	f := newRelayerFixture(t)
	f.closeStream = true
	s := f.stage(false, testIntervals(), time.Second, 10*time.Second)

	err := s.connectAuthAndStream(context.Background())
	if !errors.Is(err, ErrStreamDisconnected) {
		t.Fatalf("expected ErrStreamDisconnected, got %v", err)
	}
}

func TestMissingTpuSocket(t *testing.T) {
	f := newRelayerFixture(t)
	f.tpuBody = `{"tpu":{"ip":"10.1.2.3","port":8001}}`
	s := f.stage(false, testIntervals(), time.Second, 10*time.Second)

	err := s.connectAuthAndStream(context.Background())
	if !errors.Is(err, ErrMissingTpuSocket) {
		t.Fatalf("expected ErrMissingTpuSocket, got %v", err)
	}
}

func TestBadTpuSocket(t *testing.T) {
	f := newRelayerFixture(t)
	f.tpuBody = `{"tpu":{"ip":"not-an-ip","port":8001},"tpuForward":{"ip":"10.1.2.3","port":8002}}`
	s := f.stage(false, testIntervals(), time.Second, 10*time.Second)

	err := s.connectAuthAndStream(context.Background())
	if !errors.Is(err, ErrBadTpuSocket) {
		t.Fatalf("expected ErrBadTpuSocket, got %v", err)
	}
}

func TestPacketRoutingUntrusted(t *testing.T) {
	f := newRelayerFixture(t)
	f.frames = []string{`{"batch":{"packets":[{"data":"AQ=="},{"data":"Ag=="}]}}`}
	f.heartbeatEvery = 20 * time.Millisecond
	s := f.stage(false, testIntervals(), 20*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.connectAuthAndStream(ctx) }()

	select {
	case batch := <-f.packets:
		if len(batch) != 2 {
			t.Fatalf("batch size = %d, want 2", len(batch))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for unverified batch")
	}

	select {
	case vb := <-f.verified:
		t.Fatalf("untrusted batch leaked to verified sink: %+v", vb)
	default:
	}

	cancel()
	<-errCh
}

func TestPacketRoutingTrusted(t *testing.T) {
	f := newRelayerFixture(t)
	f.frames = []string{`{"batch":{"packets":[{"data":"AQ=="}]}}`}
	f.heartbeatEvery = 20 * time.Millisecond
	s := f.stage(true, testIntervals(), 20*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.connectAuthAndStream(ctx) }()

	select {
	case vb := <-f.verified:
		if vb.Stats != nil {
			t.Fatalf("trusted batch must carry an empty stats slot, got %+v", vb.Stats)
		}
		if len(vb.Batches) != 1 || len(vb.Batches[0]) != 1 {
			t.Fatalf("unexpected verified batch shape: %+v", vb)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for verified batch")
	}

	select {
	case batch := <-f.packets:
		t.Fatalf("trusted batch leaked to unverified sink: %+v", batch)
	default:
	}

	cancel()
	<-errCh
}

func TestClosedSinkIsFatal(t *testing.T) {
	f := newRelayerFixture(t)
	f.frames = []string{`{"heartbeat":{"count":1}}`}
	close(f.done)
	// Unbuffered sinks so the forward must race Done.
	f.heartbeats = make(chan HeartbeatEvent)
	s := f.stage(false, testIntervals(), time.Second, 10*time.Second)

	err := s.connectAuthAndStream(context.Background())
	if !errors.Is(err, ErrHeartbeatChannel) {
		t.Fatalf("expected ErrHeartbeatChannel, got %v", err)
	}
}

func TestEndToEndStatsAndRouting(t *testing.T) {
	f := newRelayerFixture(t)
	f.frames = []string{
		`{"heartbeat":{"count":1}}`,
		`{"batch":{"packets":[{"data":"AQ=="},{"data":"Ag=="},{"data":"Aw=="}]}}`,
	}
	s := f.stage(false, testIntervals(), time.Second, 10*time.Second)

	statsCh := make(chan ConnectionStats, 16)
	s.OnStats = func(stats ConnectionStats) {
		if stats != (ConnectionStats{}) {
			statsCh <- stats
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.connectAuthAndStream(ctx) }()

	select {
	case stats := <-statsCh:
		want := ConnectionStats{Heartbeats: 1, Packets: 3, EmptyMessages: 0}
		if stats != want {
			t.Fatalf("stats = %+v, want %+v", stats, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stats tick")
	}

	ev := <-f.heartbeats
	if ev.TpuSocket.String() != "10.1.2.3:8001" {
		t.Fatalf("heartbeat event sockets = %+v", ev)
	}
	batch := <-f.packets
	if len(batch) != 3 {
		t.Fatalf("unverified batch size = %d, want 3", len(batch))
	}

	cancel()
	<-errCh
}

func TestMaintenanceIdentityChangeIsFatal(t *testing.T) {
	f := newRelayerFixture(t)
	f.heartbeatEvery = 20 * time.Millisecond
	intervals := &config.IntervalConfig{
		MetricsInterval:     time.Hour,
		MaintenanceInterval: 60 * time.Millisecond,
	}
	s := f.stage(false, intervals, 20*time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- s.connectAuthAndStream(ctx) }()

	// Give the connection time to establish, then rotate the identity.
	time.Sleep(30 * time.Millisecond)
	callsAfterConnect := f.tokenCalls.Load()
	rotated, err := sr25519.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate rotated keypair: %v", err)
	}
	f.ident.Set(rotated)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrIdentityChanged) {
			t.Fatalf("expected ErrIdentityChanged, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for identity-change failure")
	}

	// The identity check runs before any refresh RPC is attempted.
	if got := f.tokenCalls.Load(); got != callsAfterConnect {
		t.Fatalf("token calls changed after identity rotation: %d -> %d", callsAfterConnect, got)
	}
	if f.refreshCalls.Load() != 0 {
		t.Fatalf("refresh calls = %d, want 0", f.refreshCalls.Load())
	}
}

func TestRunBacksOffAndStopsOnCancel(t *testing.T) {
	var attempts atomic.Int32
	cfg := func() (Config, error) {
		attempts.Add(1)
		return Config{}, errors.New("config unavailable")
	}

	keypair, err := sr25519.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	s := NewStage(cfg, identity.NewStaticProvider(keypair), Sinks{}, testIntervals())
	s.backoffStep = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancellation")
	}

	if attempts.Load() < 2 {
		t.Fatalf("expected repeated attempts with backoff, got %d", attempts.Load())
	}
	// The last attempt may have been interrupted by cancellation before it
	// was counted.
	if s.errorCount < uint64(attempts.Load())-1 {
		t.Fatalf("error count %d, attempts %d", s.errorCount, attempts.Load())
	}
}
