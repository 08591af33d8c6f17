package db

import (
	"errors"
	"strings"

	"gorm.io/driver/sqlite"
)

// ConnectSQLite opens a file-backed store for single-host development. WAL and
// a busy timeout let the api and worker processes share one file.
func ConnectSQLite(path string) (*Database, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		dsn = "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}
	database, err := open(sqlite.Open(dsn), "sqlite")
	if err != nil {
		return nil, err
	}

	sqlDB, err := database.DB.DB()
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	// One writer at a time; sqlite serializes writes anyway.
	sqlDB.SetMaxOpenConns(1)
	return database, nil
}
