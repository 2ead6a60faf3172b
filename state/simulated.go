package state

import (
	"database/sql"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"

	"github.com/ekoketoken/ekoke-bridge-go/agreement"
	"github.com/ekoketoken/ekoke-bridge-go/common"
)

func RandSwap(status SwapStatus) *Swap {
	s := &Swap{
		Nonce:     agreement.Subaccount(common.RandBytes32()),
		Direction: agreement.SwapDirectionNativeToErc20,
		Source: agreement.Account{
			Owner: agreement.Principal("aaaaa-aa"),
		},
		DestAddress: "0x00000000000000000000000000000000000000aB",
		Amount:      big.NewInt(100),
		Status:      status,
	}

	switch status {
	case SwapStatusQuoted:
		s.Fee = 231_634
	case SwapStatusDebited, SwapStatusSubmitted, SwapStatusConfirmed:
		s.Fee = 231_634
		s.DebitBlock = big.NewInt(42)
	}
	if status == SwapStatusSubmitted || status == SwapStatusConfirmed {
		s.EthTxHash = ethcommon.Hash(common.RandBytes32())
	}

	return s
}

func getMemoryDB() *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		logger.Fatal(err)
	}
	return db
}
