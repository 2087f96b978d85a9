package vectorstore

import (
	"fmt"
	"time"
)

// Config is the vector store's connection and pool tuning surface,
// grounded on the teacher's pkg/database.Config but trimmed to the
// Postgres+pgvector path this module actually exercises (no AWS/RDS/IAM
// branch — this module has no component that would use it).
type Config struct {
	DSN             string
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	QueryTimeout    time.Duration

	// StatementTimeout and WorkMem are carried in the config only; Store
	// does not apply them to its connections.
	StatementTimeout time.Duration
	WorkMem          string
	ParallelWorkers  int

	// Dimension is the fixed feature/preference vector width D.
	Dimension int

	// HNSW graph-build parameters.
	HNSWM             int
	HNSWEfConstruction int

	MigrationsPath string
}

// NewConfig returns defaults matching spec.md §4.2's stated defaults.
func NewConfig() *Config {
	return &Config{
		SSLMode:            "disable",
		Port:               5432,
		MaxOpenConns:       25,
		MaxIdleConns:       5,
		ConnMaxLifetime:    5 * time.Minute,
		ConnectTimeout:     10 * time.Second,
		QueryTimeout:       30 * time.Second,
		StatementTimeout:   30 * time.Second,
		Dimension:          DefaultDimension,
		HNSWM:              16,
		HNSWEfConstruction: 64,
		MigrationsPath:     "internal/vectorstore/migrations",
	}
}

// GetDSN returns the explicit DSN if set, else builds one from
// components.
func (c *Config) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	dsn := "postgres://"
	if c.Username != "" {
		dsn += c.Username
		if c.Password != "" {
			dsn += ":" + c.Password
		}
		dsn += "@"
	}
	dsn += fmt.Sprintf("%s:%d/%s", host, c.Port, c.Database)
	dsn += "?sslmode=" + c.SSLMode
	return dsn
}

// Validate checks the minimum fields needed to attempt a connection.
func (c *Config) Validate() error {
	if c.DSN == "" && (c.Host == "" || c.Database == "") {
		return fmt.Errorf("vectorstore: invalid config: need either DSN or Host+Database")
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("vectorstore: invalid config: Dimension must be > 0")
	}
	return nil
}
