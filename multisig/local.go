package multisig

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// LocalEcdsaSigner is backed by one single private key
// (simulation of the multi-party threshold setup).
type LocalEcdsaSigner struct {
	sk *btcec.PrivateKey
}

// NewLocalEcdsaSigner creates a signer from a 32-byte private key.
func NewLocalEcdsaSigner(privkey []byte) (*LocalEcdsaSigner, error) {
	sk, _ := btcec.PrivKeyFromBytes(privkey)
	return &LocalEcdsaSigner{sk: sk}, nil
}

// NewRandomLocalEcdsaSigner generates a fresh random key.
func NewRandomLocalEcdsaSigner() (*LocalEcdsaSigner, error) {
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &LocalEcdsaSigner{sk: sk}, nil
}

func (ls *LocalEcdsaSigner) SignHash(_ context.Context, hash [32]byte) ([]byte, error) {
	compact := ecdsa.SignCompact(ls.sk, hash[:], false)
	return compactToEth(compact)
}

func (ls *LocalEcdsaSigner) PublicKey(_ context.Context) ([]byte, error) {
	return ls.sk.PubKey().SerializeUncompressed(), nil
}
