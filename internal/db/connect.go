// Package db opens GORM connections and manages schema migration for the
// Spindle document store.
package db

import (
	"fmt"

	"github.com/spindlehq/spindle/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a MySQL DSN from database settings.
func DSN(dc config.DatabaseConfig) string {
	cred := dc.User
	if dc.Password != "" {
		cred += ":" + dc.Password
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true", cred, dc.Host, dc.Port, dc.Database)
}

// Connect opens a GORM connection using the configured driver.
func Connect(dc config.DatabaseConfig) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	switch dc.Driver {
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(dc.Path), cfg)
		if err != nil {
			return nil, fmt.Errorf("db: open sqlite %s: %w", dc.Path, err)
		}
		return db, nil
	case "mysql":
		db, err := gorm.Open(mysql.Open(DSN(dc)), cfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", dc.Host, dc.Port, dc.Database, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("db: unknown driver %q", dc.Driver)
	}
}

// ConnectAdmin opens a MySQL connection without selecting a database,
// used for CREATE DATABASE and DROP DATABASE operations.
func ConnectAdmin(dc config.DatabaseConfig) (*gorm.DB, error) {
	cred := dc.User
	if dc.Password != "" {
		cred += ":" + dc.Password
	}
	dsn := fmt.Sprintf("%s@tcp(%s:%d)/?parseTime=true", cred, dc.Host, dc.Port)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: admin connect to %s:%d: %w", dc.Host, dc.Port, err)
	}
	return db, nil
}

// DropDatabase drops the named database if it exists.
func DropDatabase(adminDB *gorm.DB, name string) error {
	sql := fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", name)
	if err := adminDB.Exec(sql).Error; err != nil {
		return fmt.Errorf("db: drop database %s: %w", name, err)
	}
	return nil
}

// CreateDatabase creates the named database if it doesn't already exist.
func CreateDatabase(adminDB *gorm.DB, name string) error {
	sql := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", name)
	if err := adminDB.Exec(sql).Error; err != nil {
		return fmt.Errorf("db: create database %s: %w", name, err)
	}
	return nil
}
