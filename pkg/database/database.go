package database

import (
	"fmt"
	"log"
	"virtualtest_backend/internal/config"
	"virtualtest_backend/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Info),
		TranslateError: true, // 把方言错误映射为 gorm.ErrDuplicatedKey 等通用错误
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	err = db.AutoMigrate(
		&model.User{},
		&model.TestSession{},
		&model.ModuleScore{},
		&model.TestConfig{},
	)

	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	// 默认测试参数预设（表为空时写入并激活）
	var count int64
	db.Model(&model.TestConfig{}).Count(&count)
	if count == 0 {
		defaultCfg := model.DefaultTestConfig()
		defaultCfg.IsActive = true
		db.Create(defaultCfg)
	}

	return db, nil
}
