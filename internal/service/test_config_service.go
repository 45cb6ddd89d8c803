package service

import (
	"errors"
	"virtualtest_backend/internal/model"
	"virtualtest_backend/internal/repository"
	"virtualtest_backend/internal/util"

	"gorm.io/gorm"
)

// TestConfigService 管理端的测试参数预设维护
type TestConfigService struct {
	Repo *repository.TestConfigRepository
}

func NewTestConfigService(repo *repository.TestConfigRepository) *TestConfigService {
	return &TestConfigService{Repo: repo}
}

func (s *TestConfigService) List() ([]model.TestConfig, error) {
	return s.Repo.List()
}

func (s *TestConfigService) Get(id uint) (*model.TestConfig, error) {
	cfg, err := s.Repo.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrConfigNotFound
	}
	return cfg, err
}

// GetActive 当前生效的预设，不存在时返回内置默认值
func (s *TestConfigService) GetActive() *model.TestConfig {
	cfg, err := s.Repo.FindActive()
	if err != nil {
		return model.DefaultTestConfig()
	}
	return cfg
}

func validateConfig(cfg *model.TestConfig) error {
	if cfg.ReadingTimeLimit <= 0 || cfg.ListeningTimeLimit <= 0 ||
		cfg.WritingTimeLimit <= 0 || cfg.SpeakingTimeLimit <= 0 {
		return errors.New("time limits must be positive")
	}
	if cfg.Difficulty != "" && !model.ValidCEFRLevel(cfg.Difficulty) {
		return errors.New("invalid difficulty level")
	}
	return nil
}

func (s *TestConfigService) Create(cfg *model.TestConfig) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	// 新建的预设不自动生效，需显式激活
	cfg.IsActive = false
	return s.Repo.Create(cfg)
}

func (s *TestConfigService) Update(id uint, updated *model.TestConfig) (*model.TestConfig, error) {
	cfg, err := s.Repo.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrConfigNotFound
	}
	if err != nil {
		return nil, err
	}

	if updated.Name != "" {
		cfg.Name = updated.Name
	}
	if updated.ReadingTimeLimit > 0 {
		cfg.ReadingTimeLimit = updated.ReadingTimeLimit
	}
	if updated.ListeningTimeLimit > 0 {
		cfg.ListeningTimeLimit = updated.ListeningTimeLimit
	}
	if updated.WritingTimeLimit > 0 {
		cfg.WritingTimeLimit = updated.WritingTimeLimit
	}
	if updated.SpeakingTimeLimit > 0 {
		cfg.SpeakingTimeLimit = updated.SpeakingTimeLimit
	}
	if updated.Difficulty != "" {
		cfg.Difficulty = updated.Difficulty
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if err := s.Repo.Update(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *TestConfigService) Activate(id uint) error {
	err := s.Repo.Activate(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrConfigNotFound
	}
	return err
}

// Delete 激活中的预设不允许删除
func (s *TestConfigService) Delete(id uint) error {
	cfg, err := s.Repo.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrConfigNotFound
	}
	if err != nil {
		return err
	}
	if cfg.IsActive {
		return errors.New("cannot delete the active config")
	}
	return s.Repo.Delete(id)
}
