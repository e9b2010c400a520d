package db

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
)

type Options struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogSQL          bool
}

func NewPSQLStorage(opts Options) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Silent)
	if opts.LogSQL {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(opts.URL), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	return db, nil
}

// Models lists every table owned by the service, parents first.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.TrainerProfile{},
		&models.Booking{},
		&models.Review{},
		&models.Device{},
		&models.NotificationHistory{},
	}
}
