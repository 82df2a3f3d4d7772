package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"anggaran/internal/config"
	"anggaran/internal/infrastructure/storage"
	"anggaran/internal/model"
	"anggaran/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ============================================================================
// 收据两阶段上传
// ============================================================================
//
//   Stage     用户选择文件后立即上传到暂存区，返回令牌
//   Finalize  表单提交时把暂存文件转存到正式目录，令牌只能使用一次
//             记录支出时拆成 Prepare / Commit / Cleanup，令牌随支出事务一起标记
//   Purge     超过保留时间仍未转存的暂存文件由定时任务清理
//
// ============================================================================

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type ReceiptService struct {
	store       storage.ObjectStore
	cfg         *config.StorageConfig
	log         zerolog.Logger
	receiptRepo *repository.ReceiptRepository
}

func NewReceiptService(db *gorm.DB, store storage.ObjectStore, cfg *config.Config, log zerolog.Logger) *ReceiptService {
	return &ReceiptService{
		store:       store,
		cfg:         &cfg.Storage,
		log:         log.With().Str("component", "receipt").Logger(),
		receiptRepo: repository.NewReceiptRepository(db),
	}
}

type StageResult struct {
	Token       string `json:"token"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Stage 只接受图片和 PDF，大小不超过 storage.max_upload_mb
func (s *ReceiptService) Stage(ctx context.Context, fileName, contentType string, size int64, r io.Reader, uploadedBy string) (*StageResult, error) {
	if !allowedContentType(contentType) {
		return nil, &ValidationError{Field: "file", Message: "hanya gambar atau PDF yang diperbolehkan"}
	}
	if size <= 0 {
		return nil, &ValidationError{Field: "file", Message: "berkas kosong"}
	}
	if limit := int64(s.cfg.MaxUploadMB) << 20; limit > 0 && size > limit {
		return nil, &ValidationError{Field: "file", Message: fmt.Sprintf("ukuran maksimal %d MB", s.cfg.MaxUploadMB)}
	}

	token := uuid.NewString()
	name := sanitizeFileName(fileName)
	key := path.Join(s.cfg.StagingPrefix, time.Now().UTC().Format("2006/01/02"), token+"-"+name)

	if err := s.store.Put(ctx, key, contentType, r); err != nil {
		return nil, fmt.Errorf("上传暂存文件失败: %w", err)
	}

	upload := &model.ReceiptUpload{
		ID:          token,
		StagingKey:  key,
		FileName:    name,
		ContentType: contentType,
		Size:        size,
		UploadedBy:  uploadedBy,
	}
	if err := s.receiptRepo.Create(ctx, upload); err != nil {
		// 记录写入失败时文件无人引用，直接删掉
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.log.Warn().Err(delErr).Str("key", key).Msg("删除暂存文件失败")
		}
		return nil, fmt.Errorf("保存上传记录失败: %w", err)
	}

	s.log.Info().Str("token", token).Str("key", key).Int64("size", size).Msg("收据已暂存")
	return &StageResult{Token: token, FileName: name, ContentType: contentType, Size: size}, nil
}

// PendingReceipt 已复制到正式目录、尚未在数据库中标记转存的收据
type PendingReceipt struct {
	Token      string
	StagingKey string
	FinalKey   string
	URL        string
}

// Finalize 把暂存文件转存到正式目录，返回访问地址
func (s *ReceiptService) Finalize(ctx context.Context, token string) (string, error) {
	pending, err := s.Prepare(ctx, token)
	if err != nil {
		return "", err
	}
	if err := s.Commit(ctx, nil, pending); err != nil {
		return "", err
	}
	s.Cleanup(ctx, pending)
	return pending.URL, nil
}

// Prepare 复制暂存文件到正式目录，令牌仍保持未使用状态。
// 正式路径由暂存路径推导，同一令牌重复调用覆盖同一个对象。
func (s *ReceiptService) Prepare(ctx context.Context, token string) (*PendingReceipt, error) {
	upload, err := s.receiptRepo.GetByID(ctx, token)
	if err != nil {
		return nil, notFound(err, token)
	}
	if upload.Finalized() {
		return nil, ErrUploadAlreadyFinalized
	}

	finalKey := s.finalKey(upload.StagingKey)
	if err := s.store.Copy(ctx, upload.StagingKey, finalKey); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, &NotFoundError{Entity: "Berkas", ID: token}
		}
		return nil, fmt.Errorf("转存收据失败: %w", err)
	}

	return &PendingReceipt{
		Token:      token,
		StagingKey: upload.StagingKey,
		FinalKey:   finalKey,
		URL:        s.store.URL(finalKey),
	}, nil
}

// Commit 标记令牌已使用；tx 回滚后令牌可以再次提交
func (s *ReceiptService) Commit(ctx context.Context, tx *gorm.DB, pending *PendingReceipt) error {
	return s.receiptRepo.MarkFinalized(ctx, tx, pending.Token, pending.FinalKey, pending.URL, time.Now())
}

// Cleanup 提交成功后删除暂存文件
func (s *ReceiptService) Cleanup(ctx context.Context, pending *PendingReceipt) {
	if err := s.store.Delete(ctx, pending.StagingKey); err != nil {
		// 暂存文件残留不影响结果，清理任务只处理未转存的记录
		s.log.Warn().Err(err).Str("key", pending.StagingKey).Msg("删除暂存文件失败")
	}
}

func (s *ReceiptService) finalKey(stagingKey string) string {
	return path.Join(s.cfg.ReceiptPrefix, strings.TrimPrefix(stagingKey, s.cfg.StagingPrefix+"/"))
}

// PurgeStaged 删除 before 之前上传且未转存的文件和记录，返回清理数量
func (s *ReceiptService) PurgeStaged(ctx context.Context, before time.Time, limit int) (int, error) {
	uploads, err := s.receiptRepo.ListStagedBefore(ctx, before, limit)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, upload := range uploads {
		if err := s.store.Delete(ctx, upload.StagingKey); err != nil {
			s.log.Error().Err(err).Str("token", upload.ID).Msg("删除过期暂存文件失败")
			continue
		}
		// 提交失败的表单可能留下未被引用的正式副本
		if err := s.store.Delete(ctx, s.finalKey(upload.StagingKey)); err != nil {
			s.log.Error().Err(err).Str("token", upload.ID).Msg("删除未引用的收据副本失败")
			continue
		}
		if err := s.receiptRepo.Delete(ctx, upload.ID); err != nil {
			s.log.Error().Err(err).Str("token", upload.ID).Msg("删除过期上传记录失败")
			continue
		}
		purged++
	}
	return purged, nil
}

// StagingRetention 暂存文件的保留时长
func (s *ReceiptService) StagingRetention() time.Duration {
	return time.Duration(s.cfg.StagingRetentionHours) * time.Hour
}

func allowedContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(ct, "image/") || ct == "application/pdf"
}

func sanitizeFileName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	base = unsafeFileChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "receipt"
	}
	if len(base) > 100 {
		base = base[len(base)-100:]
	}
	return base
}
