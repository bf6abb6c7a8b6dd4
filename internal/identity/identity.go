// Package identity provides access to the validator's current signing
// identity. The key may be rotated by the operator at runtime, so callers
// that care about rotation must re-read it rather than hold a keypair.
package identity

import (
	"fmt"
	"sync"

	"github.com/ChainSafe/gossamer/lib/crypto/sr25519"
	"github.com/rs/zerolog/log"

	"github.com/stakemesh-labs/relayproxy/pkg/signature"
)

// Provider returns the validator's current identity keypair.
type Provider interface {
	Current() (*sr25519.Keypair, error)
}

// FileProvider reads the identity keypair from the wallet directory on every
// call, so hotkey rotation is observed without a restart.
type FileProvider struct {
	coldkeyName string
	hotkeyName  string
}

func NewFileProvider(coldkeyName, hotkeyName string) (*FileProvider, error) {
	if hotkeyName == "" {
		return nil, fmt.Errorf("hotkey name cannot be empty")
	}
	return &FileProvider{
		coldkeyName: coldkeyName,
		hotkeyName:  hotkeyName,
	}, nil
}

func (p *FileProvider) Current() (*sr25519.Keypair, error) {
	keypair, err := signature.LoadKeypairFromHotkey(p.coldkeyName, p.hotkeyName)
	if err != nil {
		log.Error().
			Err(err).
			Str("hotkey_name", p.hotkeyName).
			Msg("failed to load identity keypair")
		return nil, fmt.Errorf("load identity keypair: %w", err)
	}
	return keypair, nil
}

// StaticProvider serves a fixed keypair. The keypair can be swapped with Set,
// which is how tests exercise identity rotation.
type StaticProvider struct {
	mu      sync.Mutex
	keypair *sr25519.Keypair
}

func NewStaticProvider(keypair *sr25519.Keypair) *StaticProvider {
	return &StaticProvider{keypair: keypair}
}

func (p *StaticProvider) Current() (*sr25519.Keypair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.keypair == nil {
		return nil, fmt.Errorf("identity keypair not set")
	}
	return p.keypair, nil
}

func (p *StaticProvider) Set(keypair *sr25519.Keypair) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keypair = keypair
}
