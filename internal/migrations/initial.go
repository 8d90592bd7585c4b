package migrations

import (
	"database/sql"
)

// GetInitialMigrations returns the base schema migrations
func GetInitialMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_inventory_tables",
			Up: func(tx *sql.Tx) error {
				return execAll(tx,
					`CREATE TABLE networks (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						name TEXT NOT NULL UNIQUE,
						address TEXT NOT NULL,
						netmask TEXT NOT NULL,
						start_ip TEXT,
						increment INTEGER NOT NULL DEFAULT 1,
						using_dhcp INTEGER NOT NULL DEFAULT 0,
						type TEXT NOT NULL DEFAULT 'provision',
						created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE TABLE software_profiles (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						name TEXT NOT NULL UNIQUE,
						is_idle INTEGER NOT NULL DEFAULT 0,
						min_nodes INTEGER NOT NULL DEFAULT 0,
						locked_state TEXT NOT NULL DEFAULT 'Unlocked',
						created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE TABLE hardware_profiles (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						name TEXT NOT NULL UNIQUE,
						name_format TEXT NOT NULL DEFAULT '*',
						location TEXT NOT NULL DEFAULT 'local',
						resource_adapter TEXT NOT NULL DEFAULT '',
						idle_software_profile_id INTEGER,
						created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
						FOREIGN KEY (idle_software_profile_id) REFERENCES software_profiles(id) ON DELETE SET NULL
					)`,
					`CREATE TABLE hardware_profile_networks (
						hardware_profile_id INTEGER NOT NULL,
						network_id INTEGER NOT NULL,
						device TEXT NOT NULL,
						PRIMARY KEY (hardware_profile_id, device),
						FOREIGN KEY (hardware_profile_id) REFERENCES hardware_profiles(id) ON DELETE CASCADE,
						FOREIGN KEY (network_id) REFERENCES networks(id) ON DELETE CASCADE
					)`,
					`CREATE TABLE nodes (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						name TEXT NOT NULL UNIQUE,
						rack INTEGER,
						add_host_session TEXT,
						hardware_profile_id INTEGER NOT NULL,
						software_profile_id INTEGER,
						created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
						FOREIGN KEY (hardware_profile_id) REFERENCES hardware_profiles(id),
						FOREIGN KEY (software_profile_id) REFERENCES software_profiles(id) ON DELETE SET NULL
					)`,
					`CREATE TABLE nics (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						node_id INTEGER NOT NULL,
						network_id INTEGER,
						device TEXT NOT NULL DEFAULT '',
						mac TEXT,
						ip TEXT,
						boot INTEGER NOT NULL DEFAULT 0,
						FOREIGN KEY (node_id) REFERENCES nodes(id) ON DELETE CASCADE,
						FOREIGN KEY (network_id) REFERENCES networks(id),
						UNIQUE (network_id, ip),
						UNIQUE (network_id, mac)
					)`,
					`CREATE TABLE tags (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						key TEXT NOT NULL,
						value TEXT NOT NULL DEFAULT '',
						UNIQUE (key, value)
					)`,
					`CREATE TABLE node_tags (
						node_id INTEGER NOT NULL,
						tag_id INTEGER NOT NULL,
						PRIMARY KEY (node_id, tag_id),
						FOREIGN KEY (node_id) REFERENCES nodes(id) ON DELETE CASCADE,
						FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
					)`,
				)
			},
			Down: func(tx *sql.Tx) error {
				return execAll(tx,
					"DROP TABLE IF EXISTS node_tags",
					"DROP TABLE IF EXISTS tags",
					"DROP TABLE IF EXISTS nics",
					"DROP TABLE IF EXISTS nodes",
					"DROP TABLE IF EXISTS hardware_profile_networks",
					"DROP TABLE IF EXISTS hardware_profiles",
					"DROP TABLE IF EXISTS software_profiles",
					"DROP TABLE IF EXISTS networks",
				)
			},
		},
		{
			Version: 2,
			Name:    "create_node_requests",
			Up: func(tx *sql.Tx) error {
				return execAll(tx,
					`CREATE TABLE node_requests (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						action TEXT NOT NULL,
						request TEXT NOT NULL,
						add_host_session TEXT NOT NULL UNIQUE,
						state TEXT NOT NULL DEFAULT 'pending',
						message TEXT NOT NULL DEFAULT '',
						created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
					)`,
				)
			},
			Down: func(tx *sql.Tx) error {
				return execAll(tx, "DROP TABLE IF EXISTS node_requests")
			},
		},
	}
}

func execAll(tx *sql.Tx, statements ...string) error {
	for _, statement := range statements {
		if _, err := tx.Exec(statement); err != nil {
			return err
		}
	}
	return nil
}
