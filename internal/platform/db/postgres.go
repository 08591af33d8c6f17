package db

import (
	"errors"
	"time"

	"gorm.io/driver/postgres"
)

func ConnectPostgres(dsn string) (*Database, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	database, err := open(postgres.Open(dsn), "postgres")
	if err != nil {
		return nil, err
	}

	sqlDB, err := database.DB.DB()
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return database, nil
}
