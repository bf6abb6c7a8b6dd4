package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/ChainSafe/gossamer/lib/crypto/sr25519"
	"github.com/rs/zerolog/log"

	"github.com/stakemesh-labs/relayproxy/pkg/signature"
)

// RefreshDecision is the outcome of comparing credential expiries against the
// lookahead window.
type RefreshDecision int

const (
	RefreshNone RefreshDecision = iota
	RefreshAccess
	RefreshFull
)

func (d RefreshDecision) String() string {
	switch d {
	case RefreshAccess:
		return "light-refresh"
	case RefreshFull:
		return "full-reauth"
	}
	return "none"
}

// DecideRefresh picks the cheapest rotation that keeps both credentials
// outside the lookahead window. An expired refresh credential cannot mint a
// new access credential, so a refresh credential inside the window forces a
// full re-handshake regardless of the access expiry. Equality triggers.
func DecideRefresh(accessExpiry, refreshExpiry, now time.Time, lookahead time.Duration) RefreshDecision {
	accessRemaining := saturatingUntil(accessExpiry, now)
	refreshRemaining := saturatingUntil(refreshExpiry, now)

	if refreshRemaining <= lookahead {
		return RefreshFull
	}
	if accessRemaining <= lookahead {
		return RefreshAccess
	}
	return RefreshNone
}

func saturatingUntil(expiry, now time.Time) time.Duration {
	if remaining := expiry.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// Manager performs the challenge/response handshake and keeps the shared
// access credential and its private refresh credential fresh. The access
// credential lives in the TokenCell read by every outbound relayer call; the
// refresh credential is owned by the manager alone.
type Manager struct {
	client *Client
	cell   *TokenCell

	refresh Credential

	fullReauths    uint64
	lightRefreshes uint64
}

func NewManager(client *Client, cell *TokenCell) *Manager {
	return &Manager{
		client: client,
		cell:   cell,
	}
}

// Cell returns the shared access credential cell.
func (m *Manager) Cell() *TokenCell {
	return m.cell
}

// FullReauths reports how many full re-handshakes this manager has run.
func (m *Manager) FullReauths() uint64 { return m.fullReauths }

// LightRefreshes reports how many access-only refreshes this manager has run.
func (m *Manager) LightRefreshes() uint64 { return m.lightRefreshes }

// Handshake requests a challenge for the identity, signs
// "<identity>-<challenge>" with the identity's private key, and submits the
// signed challenge to mint a validated access/refresh pair.
func (m *Manager) Handshake(ctx context.Context, keypair *sr25519.Keypair) (Credential, Credential, error) {
	ss58 := signature.ToSS58Address(keypair)

	log.Debug().Str("identity", ss58).Msg("requesting auth challenge")
	challengeResp, err := m.client.GenerateChallenge(ctx, GenerateChallengeRequest{
		Role:   RoleValidator,
		Pubkey: ss58,
	})
	if err != nil {
		return Credential{}, Credential{}, err
	}

	formattedChallenge := fmt.Sprintf("%s-%s", ss58, challengeResp.Challenge)

	provider, err := signature.NewProvider(keypair)
	if err != nil {
		return Credential{}, Credential{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	signedChallenge, err := provider.Sign(formattedChallenge)
	if err != nil {
		return Credential{}, Credential{}, fmt.Errorf("%w: sign challenge: %v", ErrAuthentication, err)
	}

	log.Debug().Str("challenge", formattedChallenge).Msg("submitting signed challenge")
	tokensResp, err := m.client.GenerateTokens(ctx, GenerateTokensRequest{
		Challenge:       formattedChallenge,
		ClientPubkey:    ss58,
		SignedChallenge: signedChallenge,
	})
	if err != nil {
		return Credential{}, Credential{}, err
	}

	access, err := Validate(tokensResp.AccessToken)
	if err != nil {
		return Credential{}, Credential{}, err
	}
	refresh, err := Validate(tokensResp.RefreshToken)
	if err != nil {
		return Credential{}, Credential{}, err
	}

	return access, refresh, nil
}

// Bootstrap runs the handshake and installs both credentials. Called once per
// connection attempt so a reconnect always starts from a consistent pair.
func (m *Manager) Bootstrap(ctx context.Context, keypair *sr25519.Keypair) error {
	access, refresh, err := m.Handshake(ctx, keypair)
	if err != nil {
		return err
	}
	m.cell.Store(access)
	m.refresh = refresh
	return nil
}

// MaybeRefresh re-evaluates both expiries against the wall clock and rotates
// whatever the lookahead window demands. Each call is an independent,
// idempotent re-evaluation; a no-op when both credentials are still fresh.
func (m *Manager) MaybeRefresh(ctx context.Context, keypair *sr25519.Keypair, lookahead time.Duration) error {
	accessExpiry := m.cell.Load().ExpiresAt
	decision := DecideRefresh(accessExpiry, m.refresh.ExpiresAt, time.Now(), lookahead)

	switch decision {
	case RefreshFull:
		access, refresh, err := m.Handshake(ctx, keypair)
		if err != nil {
			return err
		}
		m.cell.Store(access)
		m.refresh = refresh

		m.fullReauths++
		log.Info().
			Str("event", "auth_full_reauth").
			Str("url", m.client.BaseURL).
			Uint64("count", m.fullReauths).
			Msg("regenerated auth token pair")

	case RefreshAccess:
		resp, err := m.client.RefreshAccessToken(ctx, RefreshAccessTokenRequest{
			RefreshToken: m.refresh.Value,
		})
		if err != nil {
			return err
		}
		access, err := Validate(resp.AccessToken)
		if err != nil {
			return err
		}
		m.cell.Store(access)

		m.lightRefreshes++
		log.Info().
			Str("event", "auth_token_refresh").
			Str("url", m.client.BaseURL).
			Uint64("count", m.lightRefreshes).
			Msg("refreshed access token")
	}

	return nil
}
