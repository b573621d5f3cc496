package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"learnpulse_backend/internal/config"
	"learnpulse_backend/internal/util"
	"learnpulse_backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Transcript 一次生成调用的原始输入输出，用于审计
type Transcript struct {
	Kind      string    `json:"kind"`
	UserID    uint      `json:"userId"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Tier      string    `json:"tier"`
	CreatedAt time.Time `json:"createdAt"`
}

// ObjectKey 形如 recommendation/2024-05-01/<uuid>.json
func (t Transcript) ObjectKey() string {
	return fmt.Sprintf("%s/%s/%s.json", t.Kind, util.DayKey(t.CreatedAt), uuid.NewString())
}

// TranscriptStore 定义归档接口，写入失败只影响审计
type TranscriptStore interface {
	Save(ctx context.Context, t Transcript) error
}

// NoopTranscriptStore 不归档
type NoopTranscriptStore struct{}

func (NoopTranscriptStore) Save(context.Context, Transcript) error { return nil }

// LocalTranscriptStore 本地目录归档
type LocalTranscriptStore struct {
	Config *config.StorageConfig
}

func (p *LocalTranscriptStore) Save(ctx context.Context, t Transcript) error {
	dst := filepath.Join(p.Config.LocalPath, filepath.FromSlash(t.ObjectKey()))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

// MinioTranscriptStore MinIO 归档
type MinioTranscriptStore struct {
	Config *config.StorageConfig
	Client *minio.Client
}

func NewMinioTranscriptStore(cfg *config.StorageConfig) (*MinioTranscriptStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioTranscriptStore{Config: cfg, Client: client}, nil
}

func (p *MinioTranscriptStore) Save(ctx context.Context, t Transcript) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = p.Client.PutObject(ctx, p.Config.MinioBucket, t.ObjectKey(), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

// NewTranscriptStore 按 storage.type 选择实现，MinIO 初始化失败时退回本地目录
func NewTranscriptStore(cfg *config.StorageConfig) TranscriptStore {
	switch cfg.Type {
	case util.StorageMinio:
		p, err := NewMinioTranscriptStore(cfg)
		if err == nil {
			return p
		}
		logger.Log.Warn("MinIO初始化失败，使用本地归档", zap.Error(err))
		return &LocalTranscriptStore{Config: cfg}
	case util.StorageLocal:
		return &LocalTranscriptStore{Config: cfg}
	}
	return NoopTranscriptStore{}
}
