package pool

const balanceTable = `
CREATE TABLE IF NOT EXISTS pool_balance (
	asset TEXT NOT NULL PRIMARY KEY,
	balance TEXT NOT NULL
);
`

const reservationTable = `
CREATE TABLE IF NOT EXISTS pool_reservation (
	contractId INTEGER NOT NULL PRIMARY KEY,
	asset TEXT NOT NULL,
	amount TEXT NOT NULL
);
`
