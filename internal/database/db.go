package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
)

// FileName is the database file created inside the data directory
const FileName = "vpr_analytics.db"

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

// NewDB opens (or creates) the record store inside dataDir
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return Open(filepath.Join(dataDir, FileName))
}

// Open opens the record store at an explicit file path
func Open(dbPath string) (*DB, error) {
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// reads dominate; writes happen once per dataset load
	pool := NewConnectionPool(db, 16, 4, 5*time.Minute)

	database := &DB{
		DB:       db,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := database.initPreparedStatements(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Record store opened",
		"path", dbPath,
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns)

	return database, nil
}

// migrate creates the necessary tables
func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS datasets (
			id TEXT PRIMARY KEY,
			mark_rows INTEGER NOT NULL,
			score_rows INTEGER NOT NULL,
			bias_rows INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS mark_records (
			year TEXT NOT NULL,
			grade TEXT NOT NULL,
			subject TEXT NOT NULL,
			municipality TEXT NOT NULL,
			school TEXT NOT NULL,
			participants INTEGER NOT NULL,
			mark2 REAL NOT NULL,
			mark3 REAL NOT NULL,
			mark4 REAL NOT NULL,
			mark5 REAL NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS score_records (
			year TEXT NOT NULL,
			grade TEXT NOT NULL,
			subject TEXT NOT NULL,
			municipality TEXT NOT NULL,
			school TEXT NOT NULL,
			participants INTEGER NOT NULL,
			scores TEXT NOT NULL -- JSON object score -> percentage
		)`,

		`CREATE TABLE IF NOT EXISTS bias_records (
			year TEXT NOT NULL,
			grade TEXT NOT NULL,
			subject TEXT NOT NULL,
			municipality TEXT NOT NULL,
			school TEXT NOT NULL,
			indicators TEXT NOT NULL -- JSON object indicator -> value
		)`,

		`CREATE INDEX IF NOT EXISTS idx_mark_records_key ON mark_records(year, grade, subject, municipality, school)`,
		`CREATE INDEX IF NOT EXISTS idx_mark_records_municipality ON mark_records(municipality, school)`,
		`CREATE INDEX IF NOT EXISTS idx_score_records_key ON score_records(year, grade, subject, municipality, school)`,
		`CREATE INDEX IF NOT EXISTS idx_bias_records_key ON bias_records(year, grade, subject, municipality, school)`,
		`CREATE INDEX IF NOT EXISTS idx_datasets_created ON datasets(created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// initPreparedStatements initializes frequently used prepared statements
func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		"insert_mark": `INSERT INTO mark_records (year, grade, subject, municipality, school, participants, mark2, mark3, mark4, mark5)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		"insert_score": `INSERT INTO score_records (year, grade, subject, municipality, school, participants, scores)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,

		"insert_bias": `INSERT INTO bias_records (year, grade, subject, municipality, school, indicators)
			VALUES (?, ?, ?, ?, ?, ?)`,

		"insert_dataset": `INSERT INTO datasets (id, mark_rows, score_rows, bias_rows, created_at)
			VALUES (?, ?, ?, ?, ?)`,

		"latest_dataset": `SELECT id, mark_rows, score_rows, bias_rows, created_at
			FROM datasets ORDER BY created_at DESC LIMIT 1`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt

		slog.Debug("Prepared statement initialized", "name", name)
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// Close closes the database connection and prepared statements
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}
	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}

// IsTransient reports whether err is a busy or locked SQLite file that may
// clear on its own
func IsTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
