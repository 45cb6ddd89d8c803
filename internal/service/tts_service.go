package service

import (
	"bytes"
	"context"
	"fmt"
	"virtualtest_backend/internal/model"

	"github.com/google/uuid"
)

// TTSService 把听力文字稿合成为音频并上传到对象存储，返回可访问 URL
type TTSService struct {
	AI      *AIService
	Storage *StorageService
}

func NewTTSService(ai *AIService, storage *StorageService) *TTSService {
	return &TTSService{AI: ai, Storage: storage}
}

func (s *TTSService) SynthesizeToURL(ctx context.Context, text string, difficulty model.CEFRLevel) (string, error) {
	audio, err := s.AI.Synthesize(ctx, text, difficulty)
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("listening/%s.mp3", uuid.New().String())
	return s.Storage.Upload(ctx, filename, bytes.NewReader(audio), int64(len(audio)), "audio/mpeg")
}
