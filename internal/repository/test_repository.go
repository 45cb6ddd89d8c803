package repository

import (
	"virtualtest_backend/internal/model"

	"gorm.io/gorm"
)

type TestRepository struct {
	DB *gorm.DB
}

func NewTestRepository(db *gorm.DB) *TestRepository {
	return &TestRepository{DB: db}
}

func (r *TestRepository) CreateSession(session *model.TestSession) error {
	return r.DB.Create(session).Error
}

func (r *TestRepository) FindSessionByID(id uint) (*model.TestSession, error) {
	var session model.TestSession
	err := r.DB.First(&session, id).Error
	return &session, err
}

// FindActiveSession 返回用户最近一个未完成的会话
func (r *TestRepository) FindActiveSession(userID uint) (*model.TestSession, error) {
	var session model.TestSession
	err := r.DB.Where("user_id = ? AND is_completed = ?", userID, false).
		Order("started_at DESC").
		First(&session).Error
	return &session, err
}

func (r *TestRepository) UpdateSession(session *model.TestSession) error {
	return r.DB.Save(session).Error
}

func (r *TestRepository) ListSessionsByUser(userID uint, page, limit int) ([]model.TestSession, int64, error) {
	var sessions []model.TestSession
	var total int64

	query := r.DB.Model(&model.TestSession{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("started_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&sessions).Error
	return sessions, total, err
}

// CreateScore 写入模块成绩。同一会话重复提交同一模块会触发唯一索引，
// 由 TranslateError 映射为 gorm.ErrDuplicatedKey
func (r *TestRepository) CreateScore(score *model.ModuleScore) error {
	return r.DB.Create(score).Error
}

func (r *TestRepository) FindScoresBySession(sessionID uint) ([]model.ModuleScore, error) {
	var scores []model.ModuleScore
	err := r.DB.Where("session_id = ?", sessionID).
		Order("completed_at ASC").
		Find(&scores).Error
	return scores, err
}

func (r *TestRepository) FindScore(sessionID uint, moduleName model.ModuleName) (*model.ModuleScore, error) {
	var score model.ModuleScore
	err := r.DB.Where("session_id = ? AND module_name = ?", sessionID, moduleName).
		First(&score).Error
	return &score, err
}

func (r *TestRepository) CountScores(sessionID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.ModuleScore{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}
