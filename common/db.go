package common

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ConnectDb opens the main database. driver is "sqlite" or "mysql".
func ConnectDb(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: driver == "sqlite",
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}

	if driver == "mysql" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	zap.S().Infow("database opened", "driver", driver)
	return db, nil
}

// ConnectAnalyticsDb opens the separate analytics database. An empty dsn
// returns main so analytics share the primary connection.
func ConnectAnalyticsDb(driver, dsn string, main *gorm.DB) (*gorm.DB, error) {
	if dsn == "" {
		zap.S().Info("ANALYTICS_DATABASE_URL not set - analytics share the main database")
		return main, nil
	}
	return ConnectDb(driver, dsn)
}

// CloseDb closes the underlying sql.DB.
func CloseDb(db *gorm.DB) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		zap.S().Warnw("closing database", "error", err)
	}
}
