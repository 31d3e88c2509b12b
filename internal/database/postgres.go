package database

import (
	"fmt"

	"github.com/aihub/researchgraph/internal/config"
	"github.com/aihub/researchgraph/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 建立PostgreSQL连接并迁移图谱相关表
// 连接句柄由入口点持有并注入各组件，不使用包级单例
func NewDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return db, nil
}

// autoMigrate 按依赖顺序迁移图谱相关表
func autoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Topic{},
		&models.Query{},
		&models.Source{},
		&models.Connection{},
		&models.ResearchDirection{},
	); err != nil {
		return err
	}

	// 幂等摄取约束：同一(origin, external_id)至多一条存活记录
	// AutoMigrate不支持部分唯一索引，手工补建
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uq_sources_origin_external
		ON sources (origin, external_id)
		WHERE external_id IS NOT NULL
	`).Error; err != nil {
		return err
	}
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uq_sources_doi
		ON sources (doi)
		WHERE doi IS NOT NULL
	`).Error; err != nil {
		return err
	}

	return nil
}

// CloseDB 关闭数据库连接
func CloseDB(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
