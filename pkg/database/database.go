package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/zjoart/go-paystack-settlement/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// postgres SQLSTATE for FOR UPDATE NOWAIT contention
const lockNotAvailable = "55P03"

func Connect(dbUrl string) {
	var err error
	DB, err = gorm.Open(postgres.Open(dbUrl), &gorm.Config{TranslateError: true})
	if err != nil {
		logger.Fatal("Failed to connect to database", logger.WithError(err))
	}
	logger.Info("Connected to database")
}

func IsLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable
}
