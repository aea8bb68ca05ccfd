package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ScreenRadar/pkg/model"
)

// schemaVersion bumped whenever a migration step is appended
const schemaVersion = 2

var (
	ErrDuplicateUser  = errors.New("username or email already registered")
	ErrAuthentication = errors.New("invalid username or password")
	ErrNotFound       = errors.New("record not found")
)

// StorageError wraps a failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Config database settings
type Config struct {
	Driver       string // sqlite | postgres
	DSN          string
	SeedDemoUser bool
}

// Store owns the users and watchlists tables. Open it once and pass it around.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// schemaRecord one applied schema version
type schemaRecord struct {
	Version   int `gorm:"primaryKey"`
	AppliedAt time.Time
}

func (schemaRecord) TableName() string { return "schema_versions" }

// Open connects, migrates and optionally seeds the demo account.
func Open(cfg Config, log zerolog.Logger) (*Store, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, storageErr("open", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, storageErr("open", err)
	}
	if cfg.Driver == "postgres" {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	} else {
		// one connection keeps an in-memory database alive and serializes writers
		sqlDB.SetMaxOpenConns(1)
	}

	s := &Store{db: db, log: log.With().Str("component", "store").Logger()}

	fresh, err := s.migrate()
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	if fresh && cfg.SeedDemoUser {
		if err := s.seedDemoUser(); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}
	return s, nil
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "screenradar.db"
		}
		return sqlite.Open(dsn), nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires a dsn")
		}
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// migrate brings the schema up to schemaVersion. Existing rows are kept; it
// reports whether the users table was created by this call.
func (s *Store) migrate() (bool, error) {
	fresh := !s.db.Migrator().HasTable(&model.User{})

	if err := s.db.AutoMigrate(&schemaRecord{}); err != nil {
		return false, storageErr("migrate", err)
	}
	var current int
	if err := s.db.Model(&schemaRecord{}).Select("COALESCE(MAX(version), 0)").Scan(&current).Error; err != nil {
		return false, storageErr("migrate", err)
	}

	steps := []func(*gorm.DB) error{
		func(tx *gorm.DB) error { return tx.AutoMigrate(&model.User{}) },
		func(tx *gorm.DB) error { return tx.AutoMigrate(&model.Watchlist{}) },
	}
	for v := current + 1; v <= schemaVersion; v++ {
		step := steps[v-1]
		err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := step(tx); err != nil {
				return err
			}
			return tx.Create(&schemaRecord{Version: v, AppliedAt: time.Now().UTC()}).Error
		})
		if err != nil {
			return false, storageErr(fmt.Sprintf("migrate to v%d", v), err)
		}
		s.log.Info().Int("version", v).Msg("schema upgraded")
	}
	return fresh, nil
}

func (s *Store) seedDemoUser() error {
	_, err := s.Users().Add(context.Background(), NewUser{
		Username: "demo",
		Email:    "demo@example.com",
		Password: "demo123",
	})
	if err != nil && !errors.Is(err, ErrDuplicateUser) {
		return err
	}
	s.log.Info().Msg("demo user seeded")
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storageErr("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Users() *UserDB {
	return &UserDB{db: s.db}
}

func (s *Store) Watchlists() *WatchlistDB {
	return &WatchlistDB{db: s.db}
}
