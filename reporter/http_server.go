// This is a http type of reporter.
// It exposes the swap, liquidity pool and reward operations
// and publishes operator views of the internal state.

package reporter

import (
	"math/big"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
	"github.com/ekoketoken/ekoke-bridge-go/common"
	"github.com/ekoketoken/ekoke-bridge-go/etherman"
	"github.com/ekoketoken/ekoke-bridge-go/pool"
	"github.com/ekoketoken/ekoke-bridge-go/reward"
	"github.com/ekoketoken/ekoke-bridge-go/state"
	"github.com/ekoketoken/ekoke-bridge-go/swapman"
)

const (
	ROUTE_SWAP            = "/swap"
	ROUTE_SWAP_FEE        = "/swap/fee"
	ROUTE_POOL_BALANCE    = "/liquidity_pool/balance"
	ROUTE_POOL_ACCOUNTS   = "/liquidity_pool/accounts"
	ROUTE_RESERVE_POOL    = "/reserve_pool"
	ROUTE_CONTRACT_REWARD = "/contract_reward"
	ROUTE_SEND_REWARD     = "/send_reward"
	ROUTE_UNRECONCILED    = "/swaps/unreconciled"

	ROUTE_ADMIN_GAS_PRICE      = "/admin/gas_price"
	ROUTE_ADMIN_BRIDGE_ADDRESS = "/admin/bridge_address"
	ROUTE_ADMIN_ADMINS         = "/admin/admins"

	// caller identity header checked on admin routes
	HEADER_CALLER = "X-Caller-Principal"
)

type HttpReporter struct {
	serverIP   string // listen ip
	serverPort string // listen port

	// upstream components
	swaps    *swapman.Manager
	rewards  *reward.Engine
	pool     *pool.Pool
	statedb  *state.StateDB
	etherman *etherman.Etherman
	admins   *AdminSet
}

func NewHttpReporter(
	serverIP string,
	serverPort string,
	swaps *swapman.Manager,
	rewards *reward.Engine,
	p *pool.Pool,
	statedb *state.StateDB,
	em *etherman.Etherman,
	admins *AdminSet,
) *HttpReporter {
	return &HttpReporter{
		serverIP:   serverIP,
		serverPort: serverPort,
		swaps:      swaps,
		rewards:    rewards,
		pool:       p,
		statedb:    statedb,
		etherman:   em,
		admins:     admins,
	}
}

// Hook up routes & handlers
func (h *HttpReporter) SetupRouter() *gin.Engine {
	router := gin.Default()

	router.POST(ROUTE_SWAP, h.Swap)
	router.GET(ROUTE_SWAP_FEE, h.SwapFee)
	router.GET(ROUTE_POOL_BALANCE, h.PoolBalance)
	router.GET(ROUTE_POOL_ACCOUNTS, h.PoolAccounts)
	router.POST(ROUTE_RESERVE_POOL, h.ReservePool)
	router.GET(ROUTE_CONTRACT_REWARD, h.ContractReward)
	router.POST(ROUTE_SEND_REWARD, h.SendReward)
	router.GET(ROUTE_UNRECONCILED, h.Unreconciled)

	admin := router.Group("/", h.requireAdmin)
	admin.POST(ROUTE_ADMIN_GAS_PRICE, h.SetGasPrice)
	admin.POST(ROUTE_ADMIN_BRIDGE_ADDRESS, h.SetBridgeAddress)
	admin.POST(ROUTE_ADMIN_ADMINS, h.SetAdmins)

	return router
}

// Hook up router & ip:port
func (h *HttpReporter) Run() {
	router := h.SetupRouter()
	address := h.serverIP + ":" + h.serverPort
	if err := router.Run(address); err != nil {
		panic(err)
	}
}

type swapRequestBody struct {
	Direction   string `json:"direction"`
	SourceOwner string `json:"sourceOwner"`
	SourceSub   string `json:"sourceSub"`
	DestAddress string `json:"destAddress"`
	Amount      string `json:"amount"`
	Nonce       string `json:"nonce"`
	EthTxHash   string `json:"ethTxHash"`
}

func (h *HttpReporter) Swap(c *gin.Context) {
	var body swapRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, ok := new(big.Int).SetString(body.Amount, 10)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal string"})
		return
	}

	req := &agreement.SwapRequest{
		Direction: agreement.SwapDirection(body.Direction),
		Source: agreement.Account{
			Owner:      agreement.Principal(body.SourceOwner),
			Subaccount: agreement.Subaccount(common.HexStrToBytes32(body.SourceSub)),
		},
		DestAddress: body.DestAddress,
		Amount:      amount,
		Nonce:       agreement.Subaccount(common.HexStrToBytes32(body.Nonce)),
	}
	if body.EthTxHash != "" {
		req.EthTxHash = ethcommon.HexToHash(body.EthTxHash)
	}

	swap, err := h.swaps.Swap(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": swap})
}

func (h *HttpReporter) SwapFee(c *gin.Context) {
	fee, err := h.swaps.SwapFee(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"fee": fee})
}

func (h *HttpReporter) PoolBalance(c *gin.Context) {
	balances := h.pool.Balances()
	c.JSON(http.StatusOK, gin.H{
		"icp":   balances.Icp.String(),
		"ckbtc": balances.CkBtc.String(),
	})
}

func (h *HttpReporter) PoolAccounts(c *gin.Context) {
	accounts := h.pool.Accounts()
	c.JSON(http.StatusOK, gin.H{
		"icp": gin.H{
			"owner":      string(accounts.Icp.Owner),
			"subaccount": accounts.Icp.Subaccount.Hex(),
		},
		"ckbtc": gin.H{
			"owner":      string(accounts.CkBtc.Owner),
			"subaccount": accounts.CkBtc.Subaccount.Hex(),
		},
	})
}

type reservePoolBody struct {
	ContractID uint64 `json:"contractId"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
}

func (h *HttpReporter) ReservePool(c *gin.Context) {
	var body reservePoolBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, ok := new(big.Int).SetString(body.Amount, 10)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal string"})
		return
	}
	asset := body.Asset
	if asset == "" {
		asset = pool.AssetIcp
	}

	reserved, err := h.pool.Reserve(body.ContractID, asset, amount)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reserved": reserved.String()})
}

func (h *HttpReporter) ContractReward(c *gin.Context) {
	contractID, err := strconv.ParseUint(c.Query("contract_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "contract_id must be an unsigned integer"})
		return
	}
	installments, err := strconv.ParseUint(c.Query("installments"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "installments must be an unsigned integer"})
		return
	}

	rewardAmount, rerr := h.rewards.GetContractReward(c.Request.Context(), contractID, installments)
	if rerr != nil {
		c.JSON(statusFor(rerr), gin.H{"error": rerr.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reward": rewardAmount.String()})
}

type sendRewardBody struct {
	ContractID     uint64 `json:"contractId"`
	Installment    uint64 `json:"installment"`
	Amount         string `json:"amount"`
	RecipientOwner string `json:"recipientOwner"`
	RecipientSub   string `json:"recipientSub"`
}

func (h *HttpReporter) SendReward(c *gin.Context) {
	var body sendRewardBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, ok := new(big.Int).SetString(body.Amount, 10)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal string"})
		return
	}

	recipient := agreement.Account{
		Owner:      agreement.Principal(body.RecipientOwner),
		Subaccount: agreement.Subaccount(common.HexStrToBytes32(body.RecipientSub)),
	}

	block, err := h.rewards.SendReward(c.Request.Context(), body.ContractID, body.Installment, amount, recipient)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"blockIndex": block.String()})
}

// Unreconciled publishes the swaps whose debit landed but whose outbound
// transaction has not, for operators watching the reconciler.
func (h *HttpReporter) Unreconciled(c *gin.Context) {
	swaps, err := h.statedb.GetDebitedUnsubmitted()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": swaps})
}

func (h *HttpReporter) requireAdmin(c *gin.Context) {
	caller := agreement.Principal(c.GetHeader(HEADER_CALLER))
	if !h.admins.IsAdmin(caller) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "caller is not an admin"})
		return
	}
	c.Next()
}

type gasPriceBody struct {
	GasPriceWei string `json:"gasPriceWei"`
}

func (h *HttpReporter) SetGasPrice(c *gin.Context) {
	var body gasPriceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	price, ok := new(big.Int).SetString(body.GasPriceWei, 10)
	if !ok || price.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "gasPriceWei must be a positive decimal string"})
		return
	}

	h.swaps.SetGasPrice(price)
	c.JSON(http.StatusOK, gin.H{"gasPriceWei": price.String()})
}

type bridgeAddressBody struct {
	Address string `json:"address"`
}

func (h *HttpReporter) SetBridgeAddress(c *gin.Context) {
	var body bridgeAddressBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !ethcommon.IsHexAddress(body.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address must be a hex address"})
		return
	}

	h.etherman.SetBridgeAddress(ethcommon.HexToAddress(body.Address))
	c.JSON(http.StatusOK, gin.H{"address": ethcommon.HexToAddress(body.Address).Hex()})
}

type adminsBody struct {
	Admins []string `json:"admins"`
}

func (h *HttpReporter) SetAdmins(c *gin.Context) {
	var body adminsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	admins := make([]agreement.Principal, 0, len(body.Admins))
	for _, a := range body.Admins {
		admins = append(admins, agreement.Principal(a))
	}

	if err := h.admins.Replace(admins); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"admins": body.Admins})
}

// statusFor maps the typed bridge errors onto http status codes.
func statusFor(err error) int {
	switch err.(type) {
	case *agreement.ValidationError, *agreement.ConfigurationError:
		return http.StatusBadRequest
	case *agreement.PoolError, *agreement.TransferError, *agreement.TransferFromError,
		*agreement.ApproveError, *agreement.AllowanceError, *agreement.BalanceError:
		return http.StatusConflict
	case *agreement.XrcError, *agreement.CanisterCallError, *agreement.EthRpcError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
