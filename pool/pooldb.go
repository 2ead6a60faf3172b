package pool

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/ekoketoken/ekoke-bridge-go/database"
)

// PoolDB is the durable copy of the pool ledger. The in-memory maps in
// Pool are authoritative during a run; every mutation is written through
// here inside the same critical section.
type PoolDB struct {
	stmtCache *database.StmtCache
}

func NewPoolDB(db *sql.DB) (*PoolDB, error) {
	if _, err := db.Exec(balanceTable + reservationTable); err != nil {
		return nil, err
	}

	return &PoolDB{
		stmtCache: database.NewStmtCache(db),
	}, nil
}

func (pdb *PoolDB) Close() {
	pdb.stmtCache.Clear()
}

func (pdb *PoolDB) SetBalance(asset string, balance *big.Int) error {
	query := `INSERT OR REPLACE INTO pool_balance (asset, balance) VALUES (?, ?)`
	stmt, err := pdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(asset, balance.String())
	return err
}

func (pdb *PoolDB) GetBalances() (map[string]*big.Int, error) {
	query := `SELECT asset, balance FROM pool_balance`
	stmt, err := pdb.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := map[string]*big.Int{}
	for rows.Next() {
		var asset, raw string
		if err := rows.Scan(&asset, &raw); err != nil {
			return nil, err
		}
		balance, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("stored balance for %s is invalid: %q", asset, raw)
		}
		balances[asset] = balance
	}

	return balances, rows.Err()
}

func (pdb *PoolDB) UpsertReservation(contractID uint64, asset string, amount *big.Int) error {
	query := `INSERT OR REPLACE INTO pool_reservation (contractId, asset, amount) VALUES (?, ?, ?)`
	stmt, err := pdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(contractID, asset, amount.String())
	return err
}

func (pdb *PoolDB) DeleteReservation(contractID uint64) error {
	query := `DELETE FROM pool_reservation WHERE contractId = ?`
	stmt, err := pdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(contractID)
	return err
}

func (pdb *PoolDB) GetReservations() (map[uint64]Reservation, error) {
	query := `SELECT contractId, asset, amount FROM pool_reservation`
	stmt, err := pdb.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reservations := map[uint64]Reservation{}
	for rows.Next() {
		var contractID uint64
		var asset, raw string
		if err := rows.Scan(&contractID, &asset, &raw); err != nil {
			return nil, err
		}
		amount, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("stored reservation for contract %d is invalid: %q", contractID, raw)
		}
		reservations[contractID] = Reservation{Asset: asset, Amount: amount}
	}

	return reservations, rows.Err()
}
