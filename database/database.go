package database

import (
	"errors"
	"fmt"
	"time"

	"bookingledger/config"
	"bookingledger/models"
	"bookingledger/utils"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database представляет подключение к базе данных
type Database struct {
	DB *gorm.DB
}

// NewDatabase создает новое подключение к базе данных и применяет миграции
func NewDatabase(cfg *config.Config) (*Database, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	return &Database{DB: db}, nil
}

// GetDB возвращает экземпляр GORM
func (d *Database) GetDB() *gorm.DB {
	return d.DB
}

// Close закрывает подключение к базе данных
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Connect устанавливает соединение с базой данных и выполняет миграции
func Connect(cfg *config.Config) (*gorm.DB, error) {
	// SQL-лог идет через zap
	gormLogger := logger.New(
		zap.NewStdLog(utils.Logger().Desugar()),
		logger.Config{
			SlowThreshold:             cfg.DB.SlowThreshold,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %v", err)
	}

	// Настраиваем пул соединений
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пула соединений: %v", err)
	}
	sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(cfg, "up", 0); err != nil {
		return nil, fmt.Errorf("ошибка выполнения SQL миграций: %v", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate выполняет SQL миграции: up, down или steps (steps > 0 вверх, < 0 вниз)
func Migrate(cfg *config.Config, direction string, steps int) error {
	m, err := migrate.New(cfg.DB.Migrations, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("ошибка создания миграции: %v", err)
	}
	defer m.Close()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		err = m.Steps(steps)
	default:
		return fmt.Errorf("неизвестное направление миграции: %q", direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка выполнения миграций: %v", err)
	}

	version, dirty, verr := m.Version()
	if verr == nil {
		utils.LogInfo("Версия схемы: %d (dirty=%v)", version, dirty)
	}
	return nil
}

// AutoMigrate приводит таблицы в соответствие с моделями
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Booking{},
		&models.Obligation{},
		&models.Payment{},
	)
	if err != nil {
		return fmt.Errorf("ошибка автоматической миграции: %v", err)
	}
	return nil
}
