package migrations

import (
	"database/sql"
)

// GetPerformanceMigrations returns index migrations for the allocator hot paths
func GetPerformanceMigrations() []Migration {
	return []Migration{
		{
			Version: 10,
			Name:    "add_performance_indices",
			Up: func(tx *sql.Tx) error {
				return execAll(tx,
					"CREATE INDEX IF NOT EXISTS idx_nics_node_id ON nics(node_id)",
					"CREATE INDEX IF NOT EXISTS idx_nics_mac ON nics(mac)",
					"CREATE INDEX IF NOT EXISTS idx_nodes_add_host_session ON nodes(add_host_session)",
					"CREATE INDEX IF NOT EXISTS idx_node_requests_state ON node_requests(state)",
				)
			},
			Down: func(tx *sql.Tx) error {
				return execAll(tx,
					"DROP INDEX IF EXISTS idx_nics_node_id",
					"DROP INDEX IF EXISTS idx_nics_mac",
					"DROP INDEX IF EXISTS idx_nodes_add_host_session",
					"DROP INDEX IF EXISTS idx_node_requests_state",
				)
			},
		},
	}
}
