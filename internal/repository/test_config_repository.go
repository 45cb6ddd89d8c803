package repository

import (
	"virtualtest_backend/internal/model"

	"gorm.io/gorm"
)

type TestConfigRepository struct {
	DB *gorm.DB
}

func NewTestConfigRepository(db *gorm.DB) *TestConfigRepository {
	return &TestConfigRepository{DB: db}
}

func (r *TestConfigRepository) Create(cfg *model.TestConfig) error {
	return r.DB.Create(cfg).Error
}

func (r *TestConfigRepository) FindByID(id uint) (*model.TestConfig, error) {
	var cfg model.TestConfig
	err := r.DB.First(&cfg, id).Error
	return &cfg, err
}

// FindActive 返回当前激活的预设，没有则返回 gorm.ErrRecordNotFound
func (r *TestConfigRepository) FindActive() (*model.TestConfig, error) {
	var cfg model.TestConfig
	err := r.DB.Where("is_active = ?", true).First(&cfg).Error
	return &cfg, err
}

func (r *TestConfigRepository) List() ([]model.TestConfig, error) {
	var cfgs []model.TestConfig
	err := r.DB.Order("created_at ASC").Find(&cfgs).Error
	return cfgs, err
}

func (r *TestConfigRepository) Update(cfg *model.TestConfig) error {
	return r.DB.Save(cfg).Error
}

// Activate 激活指定预设并取消其他预设的激活状态，事务内完成
func (r *TestConfigRepository) Activate(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.TestConfig{}).
			Where("is_active = ?", true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		result := tx.Model(&model.TestConfig{}).
			Where("id = ?", id).
			Update("is_active", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *TestConfigRepository) Delete(id uint) error {
	return r.DB.Delete(&model.TestConfig{}, id).Error
}
