package etherman

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	logger "github.com/sirupsen/logrus"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
	"github.com/ekoketoken/ekoke-bridge-go/multisig"
)

// ABI fragment of the ERC20 bridge contract. transcribe mints the ERC20
// representation to the recipient after the native side has been debited.
const bridgeABI = `[{"inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"name":"transcribe","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

// Etherman moves value to the external chain. It never holds a private
// key: signing is delegated to the threshold signer. It performs no
// retries; the orchestrator owns retry policy.
type Etherman struct {
	cfg    *Config
	signer multisig.EcdsaSigner
	rpc    RpcCaller

	parsedABI abi.ABI

	// guards the bridge contract address, admin-settable at runtime
	addrMu     sync.RWMutex
	bridgeAddr ethcommon.Address

	// derived wallet address, deterministic, cached after first use
	walletOnce sync.Once
	walletAddr ethcommon.Address
	walletErr  error
}

func NewEtherman(cfg *Config, signer multisig.EcdsaSigner, rpc RpcCaller) (*Etherman, error) {
	parsed, err := abi.JSON(strings.NewReader(bridgeABI))
	if err != nil {
		return nil, err
	}

	return &Etherman{
		cfg:        cfg,
		signer:     signer,
		rpc:        rpc,
		parsedABI:  parsed,
		bridgeAddr: cfg.BridgeContractAddress,
	}, nil
}

// BridgeAddress returns the address of the bridge contract on the
// external chain.
func (em *Etherman) BridgeAddress() ethcommon.Address {
	em.addrMu.RLock()
	defer em.addrMu.RUnlock()
	return em.bridgeAddr
}

// SetBridgeAddress points the gateway at a new bridge contract.
func (em *Etherman) SetBridgeAddress(addr ethcommon.Address) {
	em.addrMu.Lock()
	defer em.addrMu.Unlock()
	em.bridgeAddr = addr
}

// WalletAddress returns the bridge's address on the external chain,
// derived from the threshold public key.
func (em *Etherman) WalletAddress(ctx context.Context) (ethcommon.Address, error) {
	em.walletOnce.Do(func() {
		pub, err := em.signer.PublicKey(ctx)
		if err != nil {
			em.walletErr = err
			return
		}
		pubKey, err := crypto.UnmarshalPubkey(pub)
		if err != nil {
			em.walletErr = &agreement.EcdsaError{Code: agreement.EcdsaInvalidPublicKey}
			return
		}
		em.walletAddr = crypto.PubkeyToAddress(*pubKey)
	})
	return em.walletAddr, em.walletErr
}

// PendingNonce returns the next usable account nonce of the bridge wallet.
func (em *Etherman) PendingNonce(ctx context.Context) (uint64, error) {
	addr, err := em.WalletAddress(ctx)
	if err != nil {
		return 0, err
	}

	result, err := em.rpc.Call(ctx, "eth_getTransactionCount", addr.Hex(), "pending")
	if err != nil {
		return 0, err
	}

	var hexNonce string
	if err := json.Unmarshal(result, &hexNonce); err != nil {
		return 0, &agreement.CanisterCallError{
			Rejection: agreement.RejectionCanisterError,
			Message:   err.Error(),
		}
	}
	return hexutil.DecodeUint64(hexNonce)
}

// SendValue builds, signs and submits the transcribe transaction that
// delivers amount to recipient on the external chain. The account nonce is
// supplied by the caller: resubmitting with an identical nonce yields an
// identical transaction, which the chain deduplicates by construction.
func (em *Etherman) SendValue(
	ctx context.Context,
	recipient ethcommon.Address,
	amount *big.Int,
	gasPrice *big.Int,
	nonce uint64,
) (ethcommon.Hash, error) {
	calldata, err := em.parsedABI.Pack("transcribe", recipient, amount)
	if err != nil {
		return ethcommon.Hash{}, &agreement.CanisterCallError{
			Rejection: agreement.RejectionCanisterError,
			Message:   err.Error(),
		}
	}

	to := em.BridgeAddress()
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      em.cfg.GasLimit,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     calldata,
	})

	signed, err := em.signTx(ctx, tx)
	if err != nil {
		return ethcommon.Hash{}, err
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return ethcommon.Hash{}, &agreement.CanisterCallError{
			Rejection: agreement.RejectionCanisterError,
			Message:   err.Error(),
		}
	}

	logger.WithFields(logger.Fields{
		"to":     recipient.Hex(),
		"amount": amount,
		"nonce":  nonce,
	}).Debug("submitting transcribe tx")

	if _, err := em.rpc.Call(ctx, "eth_sendRawTransaction", hexutil.Encode(raw)); err != nil {
		return ethcommon.Hash{}, err
	}

	return signed.Hash(), nil
}

// VerifyReceipt reports whether txHash landed successfully and was
// addressed to the bridge contract. Backs the erc20 -> native leg: only a
// burn the external chain actually executed may credit the native side.
func (em *Etherman) VerifyReceipt(ctx context.Context, txHash ethcommon.Hash) (bool, error) {
	result, err := em.rpc.Call(ctx, "eth_getTransactionReceipt", txHash.Hex())
	if err != nil {
		return false, err
	}

	if len(result) == 0 || string(result) == "null" {
		return false, nil
	}

	var receipt struct {
		Status string `json:"status"`
		To     string `json:"to"`
	}
	if err := json.Unmarshal(result, &receipt); err != nil {
		return false, &agreement.CanisterCallError{
			Rejection: agreement.RejectionCanisterError,
			Message:   err.Error(),
		}
	}

	if receipt.Status != "0x1" {
		return false, nil
	}
	return ethcommon.HexToAddress(receipt.To) == em.BridgeAddress(), nil
}

// IsConfirmed reports whether the transaction has landed in a block with a
// successful receipt.
func (em *Etherman) IsConfirmed(ctx context.Context, txHash ethcommon.Hash) (bool, error) {
	result, err := em.rpc.Call(ctx, "eth_getTransactionReceipt", txHash.Hex())
	if err != nil {
		return false, err
	}

	// not mined yet
	if len(result) == 0 || string(result) == "null" {
		return false, nil
	}

	var receipt struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(result, &receipt); err != nil {
		return false, &agreement.CanisterCallError{
			Rejection: agreement.RejectionCanisterError,
			Message:   err.Error(),
		}
	}

	return receipt.Status == "0x1", nil
}

func (em *Etherman) signTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	ethSigner := types.LatestSignerForChainID(em.cfg.ChainID)
	hash := ethSigner.Hash(tx)

	sig, err := em.signer.SignHash(ctx, [32]byte(hash))
	if err != nil {
		return nil, err
	}

	signed, err := tx.WithSignature(ethSigner, sig)
	if err != nil {
		return nil, &agreement.EcdsaError{Code: agreement.EcdsaInvalidSignature}
	}

	// the recovered sender must be the derived wallet address
	sender, err := types.Sender(ethSigner, signed)
	if err != nil {
		return nil, &agreement.EcdsaError{Code: agreement.EcdsaRecoveryIdError}
	}
	wallet, err := em.WalletAddress(ctx)
	if err != nil {
		return nil, err
	}
	if sender != wallet {
		return nil, &agreement.EcdsaError{Code: agreement.EcdsaInvalidSignature}
	}

	return signed, nil
}
