package db

import (
	"fmt"
	"strings"
	"time"

	"school_equipment_portal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options 数据库连接参数：优先 Postgres（DSN 或分项），否则回退到 SQLite 文件
type Options struct {
	DSN        string
	Host       string
	User       string
	Password   string
	Name       string
	Port       string
	SQLitePath string
	Debug      bool
}

func (o Options) postgresDSN() string {
	if o.DSN != "" {
		return o.DSN
	}
	if o.Host == "" {
		return ""
	}
	port := o.Port
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		o.Host, o.User, o.Password, o.Name, port,
	)
}

func Open(o Options) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if o.Debug {
		gcfg.Logger = logger.Default.LogMode(logger.Info)
	}

	if dsn := o.postgresDSN(); dsn != "" {
		conn, err := gorm.Open(postgres.Open(dsn), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		return conn, nil
	}

	path := o.SQLitePath
	if path == "" {
		path = "portal.db"
	}
	if !strings.Contains(path, "?") {
		path += "?_busy_timeout=5000&_foreign_keys=on"
	}
	conn, err := gorm.Open(sqlite.Open(path), gcfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite 单写者：串行化连接，避免 database is locked
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return conn, nil
}

func ConnectDB(o Options) *gorm.DB {
	conn, err := Open(o)
	if err != nil {
		zap.S().Fatalf("failed to connect to database: %v", err)
	}
	if err := Migrate(conn); err != nil {
		zap.S().Fatalf("failed to migrate models: %v", err)
	}
	zap.S().Infof("database connected, dialect=%s", conn.Dialector.Name())
	return conn
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{}, &models.Credential{}, &models.Invite{},
		&models.Equipment{}, &models.BorrowRequest{}, &models.AuditLog{},
	); err != nil {
		return err
	}

	if db.Dialector.Name() != "postgres" {
		return nil
	}

	// 容量计算只扫描占用中的申请
	return db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_active_window
	  ON %s (equipment_id, borrow_date, return_date)
	  WHERE status IN ('requested', 'pending', 'approved');
	`, models.BorrowRequestTable, models.BorrowRequestTable)).Error
}
