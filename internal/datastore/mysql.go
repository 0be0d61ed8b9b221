package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/logbook/internal/conf"
	"github.com/tphakala/logbook/internal/logger"
)

// MySQLStore implements Interface for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// Open sets up the MySQL database connection
func (store *MySQLStore) Open() error {
	cfg := store.Settings.Datastore.MySQL
	mysqlLogger := GetLogger().Module("mysql")

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	gormLogger := logger.NewGormLoggerAdapter(mysqlLogger, slowQueryThreshold)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		mysqlLogger.Error("failed to open MySQL database",
			logger.String("host", cfg.Host),
			logger.String("port", cfg.Port),
			logger.String("database", cfg.Database),
			logger.String("error", logger.RedactSensitiveData(err.Error())))
		return dbError(fmt.Errorf("failed to open MySQL database: %w", err), "open", "")
	}

	store.DB = db
	store.timeout = store.Settings.Datastore.Timeout

	if store.Settings.Datastore.AutoMigrate {
		if err := performAutoMigration(db, "MySQL", store.Settings.Backup.Enabled); err != nil {
			return err
		}
	}

	mysqlLogger.Info("MySQL database opened",
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Database))
	return nil
}
