package config

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds the settings of one named connection under linker.database.
type DatabaseConfig struct {
	Type     string     `yaml:"type"`             // "sqlite", "postgres" or "mysql".
	Host     string     `yaml:"host"`             // Database host address.
	Port     int        `yaml:"port"`             // Database port number.
	Database string     `yaml:"database"`         // Database name, or file path for SQLite.
	User     string     `yaml:"user"`             // Database user.
	Password string     `yaml:"password"`         // Database password.
	Schema   string     `yaml:"schema,omitempty"` // PostgreSQL search_path.
	Sslmode  string     `yaml:"sslmode"`          // PostgreSQL sslmode.
	Params   string     `yaml:"params,omitempty"` // Extra DSN query parameters (MySQL, SQLite).
	Pool     PoolConfig `yaml:"pool"`             // Connection pool settings.
}
