package reward

// single-row table holding the reward coefficients
var stateTable = `CREATE TABLE IF NOT EXISTS reward_state (
	id INTEGER PRIMARY KEY CHECK (id = 0),
	rmc REAL NOT NULL,
	nextHalving BIGINT UNSIGNED NOT NULL,
	avidity REAL NOT NULL,
	cpm BIGINT UNSIGNED NOT NULL,
	lastCpm BIGINT UNSIGNED NOT NULL,
	lastMonth INTEGER NOT NULL
);`
