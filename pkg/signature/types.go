// Package signature wraps the validator's sr25519 identity: challenge
// signing, signature verification, and SS58 address handling.
package signature

import "github.com/ChainSafe/gossamer/lib/crypto/sr25519"

const (
	SubstrateNetworkID = 42

	// Default paths
	DefaultWalletDir     = "~/.stakemesh"
	DefaultWalletColdkey = "default"
)

type SignatureVerifier interface {
	// Verify checks if the provided signature is valid for the given message and SS58 address.
	Verify(message, signature, ss58Address string) (bool, error)
}

// Verifier is a concrete implementation of SignatureVerifier
type Verifier struct{}

type SignatureProvider interface {
	// Sign generates a signature for the given message using the identity keypair
	Sign(message string) (string, error)
}

// Provider is a concrete implementation of SignatureProvider
type Provider struct {
	keypair *sr25519.Keypair
}
