package db

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	"Mx1Studio/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// InitDB initializes the database schema, creating tables if they don't exist,
// and performs necessary data migrations.
func InitDB() error {
	if err := createProjectsTable(); err != nil {
		return err
	}
	if err := createMediaAssetsTable(); err != nil {
		return err
	}
	if err := alterMediaAssetsTableAddThumbnail(); err != nil {
		// The column may already exist when the schema was provisioned before
		// this migration was introduced.
		if !strings.Contains(err.Error(), "Duplicate column name") && !strings.Contains(err.Error(), "already exists") {
			return err
		}
		log.Println("Column 'thumbnail_key' likely already exists in 'media_assets' table or other alter error:", err)
	}

	log.Println("Database initialization and migration completed.")
	return nil
}

func createProjectsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS projects (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		document LONGBLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	);
	`
	_, err := DB.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create projects table: %w", err)
	}
	log.Println("Projects table initialized successfully (or already exists).")
	return nil
}

func createMediaAssetsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS media_assets (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		object_key VARCHAR(512) NOT NULL,
		thumbnail_key VARCHAR(512),
		mime_type VARCHAR(128),
		kind VARCHAR(16),
		duration FLOAT,
		width INT,
		height INT,
		status VARCHAR(32) NOT NULL DEFAULT 'processing',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		CONSTRAINT uq_asset_object_key UNIQUE (object_key)
	);
	`
	_, err := DB.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create media_assets table: %w", err)
	}
	log.Println("Media assets table initialized successfully (or already exists).")
	return nil
}

func alterMediaAssetsTableAddThumbnail() error {
	// Check if thumbnail_key column exists
	var columnExists bool
	err := DB.QueryRow("SELECT COUNT(*) FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = 'media_assets' AND COLUMN_NAME = 'thumbnail_key'").Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("failed to check if thumbnail_key column exists: %w", err)
	}

	if !columnExists {
		alterQuery := `ALTER TABLE media_assets ADD COLUMN thumbnail_key VARCHAR(512);`
		_, err = DB.Exec(alterQuery)
		if err != nil {
			return fmt.Errorf("failed to add thumbnail_key column to media_assets table: %w", err)
		}
		log.Println("Column 'thumbnail_key' added to 'media_assets' table.")
	} else {
		log.Println("Column 'thumbnail_key' already exists in 'media_assets' table.")
	}

	return nil
}
