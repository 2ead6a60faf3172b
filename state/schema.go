package state

import "strings"

var (
	strZeroBytes32 = strings.Repeat("0", 64)

	// table that stores the life cycle of a swap request
	swapTable = `CREATE TABLE IF NOT EXISTS swap (
		nonce CHAR(64) PRIMARY KEY NOT NULL,
		direction VARCHAR(16) NOT NULL,
		sourceOwner VARCHAR(63) NOT NULL,
		sourceSub CHAR(64) NOT NULL,
		destAddress VARCHAR(63) NOT NULL,
		amount TEXT NOT NULL,
		fee BIGINT UNSIGNED NOT NULL DEFAULT 0,
		status VARCHAR(10) NOT NULL,
		debitBlock TEXT,
		ethNonce BIGINT UNSIGNED,
		ethGasPrice TEXT,
		ethTxHash CHAR(64) UNIQUE,
		failureMsg TEXT,
		CONSTRAINT chk_status CHECK (status IN ('validated', 'quoted', 'debited', 'submitted', 'confirmed', 'failed')),
		CONSTRAINT chk_direction CHECK (direction IN ('native_to_erc20', 'erc20_to_native')),
		CONSTRAINT chk_nonce CHECK (nonce != '` + strZeroBytes32 + `'),
		CONSTRAINT chk_ethTxHash CHECK (ethTxHash IS NULL OR ethTxHash != '` + strZeroBytes32 + `')
	);`

	// table that stores disbursed reward installments. The primary key is
	// what makes send_reward exactly-once.
	claimTable = `CREATE TABLE IF NOT EXISTS reward_claim (
		contractId INTEGER NOT NULL,
		installment INTEGER NOT NULL,
		amount TEXT NOT NULL,
		recipientOwner VARCHAR(63) NOT NULL,
		recipientSub CHAR(64) NOT NULL,
		blockIndex TEXT NOT NULL,
		PRIMARY KEY (contractId, installment)
	);`

	swapParamList = " nonce, direction, sourceOwner, sourceSub, destAddress, amount, fee, status, debitBlock, ethNonce, ethGasPrice, ethTxHash, failureMsg "
)
