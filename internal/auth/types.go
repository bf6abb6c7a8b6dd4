// Package auth implements the challenge/response handshake against the
// relayer's auth service and keeps the resulting credentials fresh.
package auth

import (
	"errors"
	"fmt"
	"time"
)

// RoleValidator is the role the proxy requests challenges for.
const RoleValidator = "validator"

var (
	// ErrAuthentication covers handshake or refresh calls rejected by the
	// auth service, including transport failures.
	ErrAuthentication = errors.New("authentication rejected")

	// ErrBadAuthenticationToken marks a malformed credential issued by the
	// server: absent, empty value, or missing expiry.
	ErrBadAuthenticationToken = errors.New("bad authentication token")
)

// Token is the wire form of a credential as issued by the auth service.
// ExpiresAt is unix seconds; zero means the server omitted it.
type Token struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Credential is an issued token with an absolute expiry. Immutable; replaced
// wholesale on rotation, never mutated in place.
type Credential struct {
	Value     string
	ExpiresAt time.Time
}

// Validate gates every credential received from the server before it is
// trusted.
func Validate(token *Token) (Credential, error) {
	if token == nil {
		return Credential{}, fmt.Errorf("%w: received a null token", ErrBadAuthenticationToken)
	}
	if token.Value == "" {
		return Credential{}, fmt.Errorf("%w: token value is empty", ErrBadAuthenticationToken)
	}
	if token.ExpiresAt == 0 {
		return Credential{}, fmt.Errorf("%w: expiresAt field is null", ErrBadAuthenticationToken)
	}
	return Credential{
		Value:     token.Value,
		ExpiresAt: time.Unix(token.ExpiresAt, 0),
	}, nil
}

type GenerateChallengeRequest struct {
	Role   string `json:"role"`
	Pubkey string `json:"pubkey"`
}

type GenerateChallengeResponse struct {
	Challenge string `json:"challenge"`
}

type GenerateTokensRequest struct {
	Challenge       string `json:"challenge"`
	ClientPubkey    string `json:"clientPubkey"`
	SignedChallenge string `json:"signedChallenge"`
}

type GenerateTokensResponse struct {
	AccessToken  *Token `json:"accessToken"`
	RefreshToken *Token `json:"refreshToken"`
}

type RefreshAccessTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshAccessTokenResponse struct {
	AccessToken *Token `json:"accessToken"`
}
