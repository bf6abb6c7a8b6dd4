// Package relaysim is a local stand-in for the auth service and relayer,
// used for development and soak-testing the proxy. It issues real signed
// tokens and streams synthetic packet batches; it is not a relayer.
package relaysim

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"

	"github.com/stakemesh-labs/relayproxy/internal/auth"
	"github.com/stakemesh-labs/relayproxy/internal/config"
	"github.com/stakemesh-labs/relayproxy/internal/packet"
	"github.com/stakemesh-labs/relayproxy/internal/relayer"
	"github.com/stakemesh-labs/relayproxy/pkg/signature"
)

// Server simulates the relayer side of the protocol on a single port.
type Server struct {
	App *fiber.App
	cfg *config.SimEnvConfig

	mu         sync.Mutex
	challenges map[string]string // pubkey -> outstanding challenge
	access     map[string]time.Time
	refresh    map[string]time.Time
}

func NewServer(cfg *config.SimEnvConfig) *Server {
	app := fiber.New(fiber.Config{
		JSONEncoder: sonic.Marshal,
		JSONDecoder: sonic.Unmarshal,
	})
	app.Use(recover.New())

	s := &Server{
		App:        app,
		cfg:        cfg,
		challenges: make(map[string]string),
		access:     make(map[string]time.Time),
		refresh:    make(map[string]time.Time),
	}

	app.Post("/auth/challenge", s.handleChallenge)
	app.Post("/auth/tokens", s.handleTokens)
	app.Post("/auth/refresh", s.handleRefresh)

	relayerGroup := app.Group("/relayer", s.requireBearer)
	relayerGroup.Get("/tpu-configs", s.handleTpuConfigs)
	relayerGroup.Get("/packets/subscribe", s.handleSubscribe)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.SimHost, s.cfg.SimPort)
	log.Info().Str("addr", addr).Msg("relayer simulator listening")
	return s.App.Listen(addr)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand does not fail on supported platforms
	}
	return hex.EncodeToString(b)
}

func (s *Server) handleChallenge(c *fiber.Ctx) error {
	var req auth.GenerateChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("bad challenge request")
	}
	if req.Role != auth.RoleValidator || req.Pubkey == "" {
		return c.Status(fiber.StatusUnauthorized).SendString("unknown role or identity")
	}

	challenge := randomHex(16)
	s.mu.Lock()
	s.challenges[req.Pubkey] = challenge
	s.mu.Unlock()

	log.Debug().Str("pubkey", req.Pubkey).Msg("issued auth challenge")
	return c.JSON(auth.GenerateChallengeResponse{Challenge: challenge})
}

func (s *Server) handleTokens(c *fiber.Ctx) error {
	var req auth.GenerateTokensRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("bad tokens request")
	}

	s.mu.Lock()
	challenge, ok := s.challenges[req.ClientPubkey]
	delete(s.challenges, req.ClientPubkey)
	s.mu.Unlock()

	want := fmt.Sprintf("%s-%s", req.ClientPubkey, challenge)
	if !ok || req.Challenge != want {
		return c.Status(fiber.StatusUnauthorized).SendString("unknown or stale challenge")
	}

	valid, err := signature.Verify(req.Challenge, req.SignedChallenge, req.ClientPubkey)
	if err != nil || !valid {
		log.Warn().Err(err).Str("pubkey", req.ClientPubkey).Msg("challenge signature rejected")
		return c.Status(fiber.StatusUnauthorized).SendString("invalid signed challenge")
	}

	now := time.Now()
	accessTok := auth.Token{Value: randomHex(24), ExpiresAt: now.Add(s.cfg.SimAccessTokenTTL).Unix()}
	refreshTok := auth.Token{Value: randomHex(24), ExpiresAt: now.Add(s.cfg.SimRefreshTokenTTL).Unix()}

	s.mu.Lock()
	s.access[accessTok.Value] = time.Unix(accessTok.ExpiresAt, 0)
	s.refresh[refreshTok.Value] = time.Unix(refreshTok.ExpiresAt, 0)
	s.mu.Unlock()

	log.Info().Str("pubkey", req.ClientPubkey).Msg("issued token pair")
	return c.JSON(auth.GenerateTokensResponse{
		AccessToken:  &accessTok,
		RefreshToken: &refreshTok,
	})
}

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	var req auth.RefreshAccessTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("bad refresh request")
	}

	s.mu.Lock()
	expiry, ok := s.refresh[req.RefreshToken]
	s.mu.Unlock()
	if !ok || time.Now().After(expiry) {
		return c.Status(fiber.StatusUnauthorized).SendString("unknown or expired refresh token")
	}

	accessTok := auth.Token{Value: randomHex(24), ExpiresAt: time.Now().Add(s.cfg.SimAccessTokenTTL).Unix()}
	s.mu.Lock()
	s.access[accessTok.Value] = time.Unix(accessTok.ExpiresAt, 0)
	s.mu.Unlock()

	return c.JSON(auth.RefreshAccessTokenResponse{AccessToken: &accessTok})
}

func (s *Server) requireBearer(c *fiber.Ctx) error {
	authz := c.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return c.Status(fiber.StatusUnauthorized).SendString("missing bearer token")
	}
	token := strings.TrimPrefix(authz, "Bearer ")

	s.mu.Lock()
	expiry, ok := s.access[token]
	s.mu.Unlock()
	if !ok || time.Now().After(expiry) {
		return c.Status(fiber.StatusUnauthorized).SendString("unknown or expired access token")
	}
	return c.Next()
}

func (s *Server) handleTpuConfigs(c *fiber.Ctx) error {
	resp := relayer.TpuConfigResponse{
		Tpu:        &relayer.SocketConfig{IP: "127.0.0.1", Port: 8001},
		TpuForward: &relayer.SocketConfig{IP: "127.0.0.1", Port: 8002},
	}

	body, err := sonic.Marshal(resp)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("marshal tpu configs")
	}

	// Compress when the client accepts zstd, mirroring what a production
	// relayer fronted by a compressing proxy would return.
	if strings.Contains(strings.ToLower(c.Get("Accept-Encoding")), "zstd") {
		enc, err := zstd.NewWriter(nil)
		if err == nil {
			body = enc.EncodeAll(body, nil)
			enc.Close()
			c.Set("Content-Encoding", "zstd")
			c.Set("Vary", "Accept-Encoding")
		}
	}

	c.Set("Content-Type", "application/json")
	return c.Send(body)
}

func (s *Server) handleSubscribe(c *fiber.Ctx) error {
	heartbeatEvery := s.cfg.SimHeartbeatInterval
	packetEvery := s.cfg.SimPacketInterval

	c.Set("Content-Type", "application/x-ndjson")
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		heartbeatTick := time.NewTicker(heartbeatEvery)
		defer heartbeatTick.Stop()
		packetTick := time.NewTicker(packetEvery)
		defer packetTick.Stop()

		var heartbeatCount uint64
		for {
			var frame relayer.StreamMessage
			select {
			case <-heartbeatTick.C:
				heartbeatCount++
				frame.Heartbeat = &relayer.Heartbeat{Count: heartbeatCount}
			case <-packetTick.C:
				frame.Batch = &packet.WireBatch{
					Packets: []packet.WirePacket{{
						Data: base64.StdEncoding.EncodeToString([]byte(randomHex(32))),
						Addr: "127.0.0.1",
						Port: 8001,
					}},
				}
			}

			line, err := sonic.Marshal(frame)
			if err != nil {
				return
			}
			if _, err := w.Write(append(line, '\n')); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				// Client disconnected.
				return
			}
		}
	}))

	return nil
}
