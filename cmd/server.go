// Server = ledger adapter + external chain gateway + pool/reward/swap
// components + db/state + http reporter.
// All components are configured via environment variables (strings!).

package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	logger "github.com/sirupsen/logrus"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
	"github.com/ekoketoken/ekoke-bridge-go/common"
	"github.com/ekoketoken/ekoke-bridge-go/etherman"
	"github.com/ekoketoken/ekoke-bridge-go/ledger"
	"github.com/ekoketoken/ekoke-bridge-go/multisig"
	"github.com/ekoketoken/ekoke-bridge-go/pool"
	"github.com/ekoketoken/ekoke-bridge-go/reporter"
	"github.com/ekoketoken/ekoke-bridge-go/reward"
	"github.com/ekoketoken/ekoke-bridge-go/state"
	"github.com/ekoketoken/ekoke-bridge-go/swapman"
	"github.com/ekoketoken/ekoke-bridge-go/xrc"
)

// Default params for server.
// More often we don't recommend users to tweak those.
// So we list them here.
const (
	frequencyToReconcileSwaps = 30 * time.Second
	frequencyToConfirmSwaps   = 15 * time.Second

	remoteSignerTimeout = 10 * time.Second
	xrcTimeout          = 10 * time.Second
)

// Keep the configuration's fields as "text" as possible.
// Its easier to load it from env vars or a config file.
type EkokeServerConfig struct {
	// eth side
	EthRpcUrl          string // json rpc url
	EthChainId         int64
	BridgeContractAddr string // erc20 bridge contract address
	EthGasLimit        uint64
	GasPriceWei        string // decimal, admin-adjustable at runtime

	// signer side: "local" or "remote"
	SignerMode         string
	LocalSignerPrivHex string // hex encoded private key (local mode)
	RemoteSignerUrl    string // signing service base url (remote mode)
	RemoteSignerPath   string // key derivation path (remote mode)

	// state side
	DbFilePath string // db file path

	// oracle side
	XrcUrl string

	// ledger side
	BridgePrincipal string
	LedgerFee       int64 // smallest unit, simulated ledger

	// http side
	HttpIp   string // eg. 0.0.0.0
	HttpPort string // eg. 8080

	// admin principals, comma separated
	Admins string
}

// EkokeServer holds the objects that consists of the bridge server.
type EkokeServer struct {
	MyEtherman *etherman.Etherman
	MyStateDb  *state.StateDB
	MyPool     *pool.Pool
	MyLedger   ledger.Client
	MyRewards  *reward.Engine
	MySwapMgr  *swapman.Manager
	MyReporter *reporter.HttpReporter
}

// NewEkokeServer creates a new bridge server.
// ctx is used for parental context to cancel the operation of the server.
// wg is used to wait for all the goroutines inside the server to finish.
func NewEkokeServer(esc *EkokeServerConfig, ctx context.Context, wg *sync.WaitGroup) (*EkokeServer, error) {
	// 0) shared sqlite db
	sqlDB, err := sql.Open("sqlite3", esc.DbFilePath)
	if err != nil {
		logger.Fatalf("cannot open db file %s: %v", esc.DbFilePath, err)
		return nil, err
	}

	statedb, err := state.NewStateDB(sqlDB)
	if err != nil {
		logger.Fatalf("cannot create state db: %v", err)
		return nil, err
	}

	// 1) liquidity pool over its durable storage
	pooldb, err := pool.NewPoolDB(sqlDB)
	if err != nil {
		logger.Fatalf("cannot create pool db: %v", err)
		return nil, err
	}
	bridgePrincipal := agreement.Principal(esc.BridgePrincipal)
	myPool, err := pool.NewPool(bridgePrincipal, pooldb)
	if err != nil {
		logger.Fatalf("cannot create pool: %v", err)
		return nil, err
	}

	// 2) threshold signer, local or remote
	signer, err := setupSigner(esc)
	if err != nil {
		logger.Fatalf("cannot create signer: %v", err)
		return nil, err
	}

	// 3) external chain gateway
	gasLimit := esc.EthGasLimit
	if gasLimit == 0 {
		gasLimit = 80_000
	}
	myEtherman, err := etherman.NewEtherman(&etherman.Config{
		RPCURL:                esc.EthRpcUrl,
		ChainID:               big.NewInt(esc.EthChainId),
		BridgeContractAddress: ethcommon.HexToAddress(esc.BridgeContractAddr),
		GasLimit:              gasLimit,
	}, signer, etherman.NewHttpRpcClient(esc.EthRpcUrl))
	if err != nil {
		logger.Fatalf("cannot create etherman: %v", err)
		return nil, err
	}

	// 4) rate oracle
	xrcClient := xrc.NewHttpClient(&xrc.Config{
		URL:     esc.XrcUrl,
		Timeout: xrcTimeout,
	})

	// 5) native side ledger.
	// The simulated backend stands in until the canister transport lands.
	ledgerFee := esc.LedgerFee
	if ledgerFee == 0 {
		ledgerFee = 10_000
	}
	myLedger := ledger.NewSimulatedLedger(
		bridgePrincipal,
		big.NewInt(ledgerFee),
		agreement.Account{Owner: bridgePrincipal},
	)

	// 6) swap orchestrator
	var swapSub agreement.Subaccount
	copy(swapSub[:], "swap")
	gasPrice, ok := new(big.Int).SetString(esc.GasPriceWei, 10)
	if !ok {
		gasPrice = nil // swapman default kicks in
	}
	mySwapMgr := swapman.New(&swapman.Config{
		BridgePrincipal:      bridgePrincipal,
		SwapSubaccount:       swapSub,
		GasPriceWei:          gasPrice,
		FrequencyToReconcile: frequencyToReconcileSwaps,
		FrequencyToConfirm:   frequencyToConfirmSwaps,
	}, statedb, myLedger, myEtherman, xrcClient)

	// 7) reward engine
	rewarddb, err := reward.NewRewardDB(sqlDB)
	if err != nil {
		logger.Fatalf("cannot create reward db: %v", err)
		return nil, err
	}
	myRewards, err := reward.NewEngine(
		&reward.Config{PayoutSubaccount: myPool.Accounts().Icp.Subaccount},
		rewarddb, myPool, myLedger, statedb, xrcClient,
	)
	if err != nil {
		logger.Fatalf("cannot create reward engine: %v", err)
		return nil, err
	}

	// 8) http reporter behind the validated admin set
	admins, err := parseAdmins(esc.Admins)
	if err != nil {
		logger.Fatalf("invalid admin set: %v", err)
		return nil, err
	}
	myReporter := reporter.NewHttpReporter(
		esc.HttpIp, esc.HttpPort,
		mySwapMgr, myRewards, myPool, statedb, myEtherman, admins,
	)

	// launch the reconciler
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mySwapMgr.Start(ctx); err != nil && err != context.Canceled {
			logger.Errorf("swap manager stopped: %v", err)
		}
	}()

	// launch the http reporter
	wg.Add(1)
	go func() {
		defer wg.Done()
		myReporter.Run()
	}()

	return &EkokeServer{
		MyEtherman: myEtherman,
		MyStateDb:  statedb,
		MyPool:     myPool,
		MyLedger:   myLedger,
		MyRewards:  myRewards,
		MySwapMgr:  mySwapMgr,
		MyReporter: myReporter,
	}, nil
}

func StartEkokeServerAndWait(esc *EkokeServerConfig) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up a signal channel to listen for Ctrl-C (SIGINT) or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		fmt.Printf("Received signal: %v, cancelling context...\n", sig)
		cancel()
	}()

	var wg sync.WaitGroup

	_, err := NewEkokeServer(esc, ctx, &wg)
	if err != nil {
		logger.Fatalf("failed to create ekoke server: %v", err)
		return
	}

	// wait for all routines to finish (which is forever)
	wg.Wait()
}

func setupSigner(esc *EkokeServerConfig) (multisig.EcdsaSigner, error) {
	switch esc.SignerMode {
	case "remote":
		connector := multisig.NewHttpConnector(&multisig.ConnectorConfig{
			URL:            esc.RemoteSignerUrl,
			DerivationPath: esc.RemoteSignerPath,
			Timeout:        remoteSignerTimeout,
		})
		return multisig.NewRemoteEcdsaSigner(connector), nil
	case "local":
		signer, err := multisig.NewLocalEcdsaSigner(common.HexStrToByteSlice(esc.LocalSignerPrivHex))
		if err != nil {
			return nil, err
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("unknown signer mode %q", esc.SignerMode)
	}
}

func parseAdmins(raw string) (*reporter.AdminSet, error) {
	var admins []agreement.Principal
	for _, piece := range strings.Split(raw, ",") {
		piece = strings.TrimSpace(piece)
		if piece != "" {
			admins = append(admins, agreement.Principal(piece))
		}
	}
	return reporter.NewAdminSet(admins)
}
