package reward

import (
	"database/sql"

	"github.com/ekoketoken/ekoke-bridge-go/database"
)

// coefficients holds the mutable knobs of the reward formula.
type coefficients struct {
	RMC         float64
	NextHalving uint64 // nanoseconds
	Avidity     float64
	CPM         uint64 // contracts rewarded this month
	LastCPM     uint64 // contracts rewarded last month
	LastMonth   uint8
}

// RewardDB persists the coefficients so halvings and avidity drift survive
// restarts.
type RewardDB struct {
	stmtCache *database.StmtCache
}

func NewRewardDB(db *sql.DB) (*RewardDB, error) {
	if _, err := db.Exec(stateTable); err != nil {
		return nil, err
	}

	return &RewardDB{
		stmtCache: database.NewStmtCache(db),
	}, nil
}

func (rdb *RewardDB) Close() {
	rdb.stmtCache.Clear()
}

func (rdb *RewardDB) Load() (*coefficients, bool, error) {
	query := `SELECT rmc, nextHalving, avidity, cpm, lastCpm, lastMonth FROM reward_state WHERE id = 0`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	var c coefficients
	if err := stmt.QueryRow().Scan(&c.RMC, &c.NextHalving, &c.Avidity, &c.CPM, &c.LastCPM, &c.LastMonth); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &c, true, nil
}

func (rdb *RewardDB) Save(c *coefficients) error {
	query := `INSERT OR REPLACE INTO reward_state (id, rmc, nextHalving, avidity, cpm, lastCpm, lastMonth)
		VALUES (0, ?, ?, ?, ?, ?, ?)`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(c.RMC, c.NextHalving, c.Avidity, c.CPM, c.LastCPM, c.LastMonth)
	return err
}
