package store

type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is applied in order; never edit a released entry.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create discovery runs",
		SQL: `
			CREATE TABLE discovery_runs (
				id           TEXT PRIMARY KEY,
				kind         TEXT NOT NULL,
				root         TEXT NOT NULL,
				started_at   TEXT NOT NULL,
				finished_at  TEXT NOT NULL,
				loaded       TEXT NOT NULL DEFAULT '[]',
				skipped      TEXT NOT NULL DEFAULT '[]',
				removed      TEXT NOT NULL DEFAULT '[]'
			);

			CREATE INDEX idx_runs_kind ON discovery_runs (kind, started_at);

			CREATE TABLE discovery_failures (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id     TEXT NOT NULL,
				candidate  TEXT NOT NULL,
				error      TEXT NOT NULL,
				FOREIGN KEY (run_id) REFERENCES discovery_runs(id) ON DELETE CASCADE
			);

			CREATE INDEX idx_failures_run ON discovery_failures (run_id, id);
		`,
	},
}
