// Threshold ECDSA signing for the external-chain gateway.
//
// The bridge never holds a chain private key in plaintext: signing is
// delegated to a signer behind the EcdsaSigner interface. The local
// implementation (single key, simulation of the multi-party setup) is used
// in tests and demos; production uses the remote signer talking to the
// threshold-signing service.

package multisig

import (
	"context"
	"math/big"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
)

// EcdsaSigner produces Ethereum-compatible recoverable signatures.
type EcdsaSigner interface {
	// SignHash signs a 32-byte hash and returns the 65-byte signature in
	// Ethereum [R || S || V] layout with V in {0, 1}.
	SignHash(ctx context.Context, hash [32]byte) ([]byte, error)

	// PublicKey returns the signer's uncompressed public key
	// (65 bytes, 0x04 || X || Y).
	PublicKey(ctx context.Context) ([]byte, error)
}

// Convert a uncompressed public key to x and y coordinates.
// The public key should be 65 bytes uncompressed [0x04 + x (32byte) + y (32byte)].
func UncompressedToXY(pubKey []byte) (*big.Int, *big.Int, error) {
	if len(pubKey) != 65 || pubKey[0] != 0x04 {
		return nil, nil, &agreement.EcdsaError{Code: agreement.EcdsaInvalidPublicKey}
	}
	x := new(big.Int).SetBytes(pubKey[1:33])
	y := new(big.Int).SetBytes(pubKey[33:])
	return x, y, nil
}

// compactToEth converts a btcec compact signature [V+27 || R || S] to the
// Ethereum wire layout [R || S || V].
func compactToEth(compact []byte) ([]byte, error) {
	if len(compact) != 65 {
		return nil, &agreement.EcdsaError{Code: agreement.EcdsaInvalidSignature}
	}
	v := compact[0]
	if v < 27 || v > 30 {
		return nil, &agreement.EcdsaError{Code: agreement.EcdsaRecoveryIdError}
	}

	sig := make([]byte, 65)
	copy(sig[:64], compact[1:])
	sig[64] = v - 27
	return sig, nil
}
