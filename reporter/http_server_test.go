package reporter

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
	"github.com/ekoketoken/ekoke-bridge-go/etherman"
	"github.com/ekoketoken/ekoke-bridge-go/ledger"
	"github.com/ekoketoken/ekoke-bridge-go/multisig"
	"github.com/ekoketoken/ekoke-bridge-go/pool"
	"github.com/ekoketoken/ekoke-bridge-go/reward"
	"github.com/ekoketoken/ekoke-bridge-go/state"
	"github.com/ekoketoken/ekoke-bridge-go/swapman"
	"github.com/ekoketoken/ekoke-bridge-go/xrc"
)

const (
	bridgePrincipal = agreement.Principal("aaaaa-aa")
	adminPrincipal  = agreement.Principal("admin-principal")
	userPrincipal   = agreement.Principal("user-principal")
)

type routerFixture struct {
	router *gin.Engine
	ledger *ledger.SimulatedLedger
	pool   *pool.Pool
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sqlDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	st, err := state.NewStateDB(sqlDB)
	require.NoError(t, err)

	poolDB, err := pool.NewPoolDB(sqlDB)
	require.NoError(t, err)
	p, err := pool.NewPool(bridgePrincipal, poolDB)
	require.NoError(t, err)

	rpc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Id     uint64 `json:"id"`
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.Method {
		case "eth_getTransactionCount":
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":"0x0"}`, req.Id)
		case "eth_sendRawTransaction":
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":"0xabc"}`, req.Id)
		case "eth_getTransactionReceipt":
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":{"status":"0x1","to":"0xc08e14F47382BCc1dA6c3f3E8581A9C1e0521c2e"}}`, req.Id)
		default:
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":null}`, req.Id)
		}
	}))
	t.Cleanup(rpc.Close)

	signer, err := multisig.NewRandomLocalEcdsaSigner()
	require.NoError(t, err)

	em, err := etherman.NewEtherman(&etherman.Config{
		RPCURL:                rpc.URL,
		ChainID:               big.NewInt(11155111),
		BridgeContractAddress: ethcommon.HexToAddress("0xc08e14F47382BCc1dA6c3f3E8581A9C1e0521c2e"),
		GasLimit:              80_000,
	}, signer, etherman.NewHttpRpcClient(rpc.URL))
	require.NoError(t, err)

	oracle := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"fee":230000,"price":100}`)
	}))
	t.Cleanup(oracle.Close)
	xrcClient := xrc.NewHttpClient(&xrc.Config{URL: oracle.URL})

	sim := ledger.NewSimulatedLedger(bridgePrincipal, big.NewInt(10_000), agreement.Account{Owner: "minter"})

	manager := swapman.New(&swapman.Config{
		BridgePrincipal: bridgePrincipal,
		GasPriceWei:     big.NewInt(1_000_000_000),
	}, st, sim, em, xrcClient)

	rdb, err := reward.NewRewardDB(sqlDB)
	require.NoError(t, err)
	engine, err := reward.NewEngine(&reward.Config{}, rdb, p, sim, st, xrcClient)
	require.NoError(t, err)

	admins, err := NewAdminSet([]agreement.Principal{adminPrincipal})
	require.NoError(t, err)

	reporter := NewHttpReporter("127.0.0.1", "0", manager, engine, p, st, em, admins)

	return &routerFixture{router: reporter.SetupRouter(), ledger: sim, pool: p}
}

func (f *routerFixture) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAdminSetValidation(t *testing.T) {
	_, err := NewAdminSet(nil)
	require.Error(t, err)
	var cfgErr *agreement.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, agreement.AdminsCantBeEmpty, cfgErr.Code)

	_, err = NewAdminSet([]agreement.Principal{agreement.AnonymousPrincipal})
	require.Error(t, err)
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, agreement.AnonymousAdmin, cfgErr.Code)
}

func TestSwapRoute(t *testing.T) {
	f := newRouterFixture(t)

	user := agreement.Account{Owner: userPrincipal}
	f.ledger.SetBalance(user, big.NewInt(2_000_000_000))
	f.ledger.SetAllowance(user, agreement.Account{Owner: bridgePrincipal}, big.NewInt(2_000_000_000))

	w := f.do(http.MethodPost, ROUTE_SWAP, gin.H{
		"direction":   "native_to_erc20",
		"sourceOwner": string(userPrincipal),
		"destAddress": "0x00000000000000000000000000000000000000aB",
		"amount":      "1000000000",
	}, nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data state.JSONSwap `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(state.SwapStatusSubmitted), resp.Data.Status)
	assert.NotEmpty(t, resp.Data.EthTxHash)
}

func TestSwapBackRoute(t *testing.T) {
	f := newRouterFixture(t)

	f.ledger.SetBalance(agreement.Account{Owner: bridgePrincipal}, big.NewInt(5_000_000_000))

	burnHash := "0x1111111111111111111111111111111111111111111111111111111111111111"
	w := f.do(http.MethodPost, ROUTE_SWAP, gin.H{
		"direction":   "erc20_to_native",
		"sourceOwner": string(userPrincipal),
		"destAddress": string(userPrincipal),
		"amount":      "1000000000",
		"ethTxHash":   burnHash,
	}, nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data state.JSONSwap `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(state.SwapStatusConfirmed), resp.Data.Status)

	// without the burn hash the request is rejected up front
	w = f.do(http.MethodPost, ROUTE_SWAP, gin.H{
		"direction":   "erc20_to_native",
		"sourceOwner": string(userPrincipal),
		"destAddress": string(userPrincipal),
		"amount":      "1000000000",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSwapRouteRejectsBadAmount(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(http.MethodPost, ROUTE_SWAP, gin.H{
		"direction":   "native_to_erc20",
		"sourceOwner": string(userPrincipal),
		"destAddress": "0x00000000000000000000000000000000000000aB",
		"amount":      "not-a-number",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSwapFeeRoute(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(http.MethodGet, ROUTE_SWAP_FEE, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Fee uint64 `json:"fee"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(230_000), resp.Fee)
}

func TestPoolRoutes(t *testing.T) {
	f := newRouterFixture(t)
	require.NoError(t, f.pool.Credit(pool.AssetIcp, big.NewInt(1000)))

	w := f.do(http.MethodGet, ROUTE_POOL_BALANCE, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"icp":"1000"`)

	w = f.do(http.MethodGet, ROUTE_POOL_ACCOUNTS, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(bridgePrincipal))

	w = f.do(http.MethodPost, ROUTE_RESERVE_POOL, gin.H{
		"contractId": 7,
		"asset":      "icp",
		"amount":     "600",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reserved":"600"`)

	// over-promising is a conflict
	w = f.do(http.MethodPost, ROUTE_RESERVE_POOL, gin.H{
		"contractId": 8,
		"asset":      "icp",
		"amount":     "500",
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminGate(t *testing.T) {
	f := newRouterFixture(t)

	body := gin.H{"gasPriceWei": "42"}

	w := f.do(http.MethodPost, ROUTE_ADMIN_GAS_PRICE, body, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, ROUTE_ADMIN_GAS_PRICE, body, map[string]string{
		HEADER_CALLER: string(userPrincipal),
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, ROUTE_ADMIN_GAS_PRICE, body, map[string]string{
		HEADER_CALLER: string(adminPrincipal),
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminReplaceAdmins(t *testing.T) {
	f := newRouterFixture(t)

	headers := map[string]string{HEADER_CALLER: string(adminPrincipal)}

	// the anonymous principal is rejected outright
	w := f.do(http.MethodPost, ROUTE_ADMIN_ADMINS, gin.H{
		"admins": []string{string(agreement.AnonymousPrincipal)},
	}, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// handing over to a new admin locks the old one out
	w = f.do(http.MethodPost, ROUTE_ADMIN_ADMINS, gin.H{
		"admins": []string{string(userPrincipal)},
	}, headers)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, ROUTE_ADMIN_GAS_PRICE, gin.H{"gasPriceWei": "42"}, headers)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBridgeAddressRoute(t *testing.T) {
	f := newRouterFixture(t)

	headers := map[string]string{HEADER_CALLER: string(adminPrincipal)}

	w := f.do(http.MethodPost, ROUTE_ADMIN_BRIDGE_ADDRESS, gin.H{"address": "nope"}, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, ROUTE_ADMIN_BRIDGE_ADDRESS, gin.H{
		"address": "0x1111111111111111111111111111111111111111",
	}, headers)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnreconciledRoute(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(http.MethodGet, ROUTE_UNRECONCILED, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":null`)
}

func TestContractRewardRoute(t *testing.T) {
	f := newRouterFixture(t)
	require.NoError(t, f.pool.Credit(pool.AssetIcp, big.NewInt(592_006_734_000_000)))

	w := f.do(http.MethodGet, ROUTE_CONTRACT_REWARD+"?contract_id=7&installments=4000", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reward":"2486428282"`)

	w = f.do(http.MethodGet, ROUTE_CONTRACT_REWARD+"?contract_id=x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
