// Package service provides business-logic for the app
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/UnendingLoop/MarkFlow/internal/config"
	"github.com/UnendingLoop/MarkFlow/internal/exporter"
	"github.com/UnendingLoop/MarkFlow/internal/model"
	"github.com/UnendingLoop/MarkFlow/internal/mwlogger"
	"github.com/UnendingLoop/MarkFlow/internal/repository"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
)

type JobService struct {
	repo            repository.JobRepo
	publisher       TaskPublisher
	storage         ObjectStorage
	exporter        Exporter
	exportDir       string
	srcKeyPrefix    string
	wmKeyPrefix     string
	resultKeyPrefix string
}

func NewJobService(cfg *config.Settings, jobRep repository.JobRepo, pub TaskPublisher, strg ObjectStorage, exp Exporter) *JobService {
	return &JobService{
		repo:            jobRep,
		publisher:       pub,
		storage:         strg,
		exporter:        exp,
		exportDir:       cfg.ExportDir,
		srcKeyPrefix:    cfg.SourceKeyPrefix,
		wmKeyPrefix:     cfg.WatermarkKeyPrefix,
		resultKeyPrefix: cfg.ResultKeyPrefix,
	}
}

// TaskPublisher - контракт для работы с очередью
type TaskPublisher interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error
}

// ObjectStorage - контракт для работы с хранилищем
type ObjectStorage interface {
	Delete(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (output io.ReadCloser, ctype string, err error)
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
}

// Exporter - контракт конвейера наложения ватермарка
type Exporter interface {
	Export(ctx context.Context, req *model.WatermarkRequest) model.CompositeResult
}

// Стратегия ретрая отправки в очередь - можно потом вынести значения в конфиг/env
var retryStrategy = retry.Strategy{
	Attempts: 5,
	Delay:    3 * time.Second,
	Backoff:  1.5,
}

// Export runs the watermark pipeline synchronously for remote callers.
// The source must come inline and the export directory is resolved inside the
// configured export root. Request errors are returned as error, pipeline failures
// only in CompositeResult.
func (c JobService) Export(ctx context.Context, req *model.WatermarkRequest) (model.CompositeResult, error) {
	if err := c.prepareExport(req); err != nil {
		return model.CompositeResult{Success: false, Error: err.Error()}, err
	}
	return c.exporter.Export(ctx, req), nil
}

func (c JobService) prepareExport(req *model.WatermarkRequest) error {
	// читать файлы сервера по запросу клиента нельзя
	if strings.TrimSpace(req.ImagePath) != "" {
		return model.ErrSourcePathDenied
	}
	if err := exporter.Validate(req); err != nil {
		return err
	}

	dir, err := confinePath(c.exportDir, req.ExportPath)
	if err != nil {
		return err
	}
	req.ExportPath = dir
	return nil
}

// confinePath joins rel onto root and fails if the result leaves root.
func confinePath(root, rel string) (string, error) {
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", model.ErrExportPathOutside
	}

	full := filepath.Join(root, rel)
	back, err := filepath.Rel(root, full)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", model.ErrExportPathOutside
	}
	return full, nil
}

func (c JobService) Create(ctx context.Context, jobData *model.JobCreateData) (*model.ExportJob, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	newJob := &model.ExportJob{}

	// Валидируем параметры задачи
	if err := validateNormalizeJob(jobData, newJob); err != nil {
		return nil, err
	}

	// генерируем UUID
	newJob.UID = uuid.New()

	// кладем в хранилище сорсник
	newJob.SourceKey = c.srcKeyPrefix + newJob.UID.String() + model.GetImageFileExt[jobData.OrigContentType]
	if err := c.storage.Put(ctx, newJob.SourceKey, jobData.OrigImgSize, jobData.OrigContentType, jobData.OrigImg); err != nil {
		logger.Error().Err(err).Msg("Failed to save source image in Storage")
		return nil, model.ErrCommon500
	}

	// кладем в хранилище ватермарк - если он передан
	if jobData.WMImg != nil {
		newJob.WatermarkKey = c.wmKeyPrefix + newJob.UID.String() + model.GetImageFileExt[jobData.WMContentType]

		if err := c.storage.Put(ctx, newJob.WatermarkKey, jobData.WMImgSize, jobData.WMContentType, jobData.WMImg); err != nil {
			logger.Error().Err(err).Msg("Failed to save watermark in Storage")
			return nil, model.ErrCommon500
		}
	}

	// ставим статус и таймстамп
	newJob.Status = model.StatusCreated
	now := time.Now().UTC()
	newJob.CreatedAt = &now

	// шлем в базу
	if err := c.repo.Create(ctx, newJob); err != nil {
		logger.Error().Err(err).Msg("Failed to create export job in DB")
		return nil, model.ErrCommon500
	}

	// кладем в очередь задач(в кафку)
	if err := c.publisher.SendWithRetry(ctx, retryStrategy, []byte(newJob.UID.String()), nil); err != nil {
		logger.Error().Err(err).Msg(fmt.Sprintf("Failed to publish job %q to task-queue", newJob.UID))
		return nil, model.ErrCommon500
	}
	return newJob, nil
}

func (c JobService) GetList(ctx context.Context, req *model.ListRequest) ([]model.ExportJob, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	validateQueryParams(req)

	res, err := c.repo.GetList(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch export jobs list from DB")
		return nil, model.ErrCommon500
	}

	return res, nil
}

func (c JobService) Get(ctx context.Context, id string) (*model.ExportJob, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	if err := uuid.Validate(id); err != nil {
		return nil, model.ErrIncorrectID
	}

	res, err := c.repo.Get(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrJobNotFound):
			return nil, model.ErrJobNotFound // 404
		default:
			logger.Error().Err(err).Msg(fmt.Sprintf("Failed to fetch job %q from DB", id))
			return nil, model.ErrCommon500
		}
	}

	return res, nil
}

func (c JobService) LoadResult(ctx context.Context, id string) (io.ReadCloser, string, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	res, err := c.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if res.Status != model.StatusDone {
		return nil, "", model.ErrResultNotReady
	}

	// достаем из хранилища
	data, cType, err := c.storage.Get(ctx, res.ResultKey)
	if err != nil {
		logger.Error().Err(err).Msg(fmt.Sprintf("Failed to fetch result of job %q from Storage", id))
		return nil, "", model.ErrCommon500
	}
	return data, cType, nil
}

func (c JobService) Delete(ctx context.Context, id string) error {
	logger := mwlogger.LoggerFromContext(ctx)

	// читаем из базы
	res, err := c.Get(ctx, id)
	if err != nil {
		return err
	}

	// удаляем из базы
	if err := c.repo.Delete(ctx, id); err != nil {
		logger.Error().Err(err).Msg("Failed to delete export job from DB")
		return model.ErrCommon500
	}

	// удаляем из хранилища сорсник, результат и ватермарк(если они есть)
	for _, key := range []string{res.SourceKey, res.WatermarkKey, res.ResultKey} {
		if key == "" {
			continue
		}
		if err := c.storage.Delete(ctx, key); err != nil {
			logger.Error().Err(err).Str("key", key).Msg("Failed to delete object from Storage")
			return model.ErrCommon500
		}
	}

	return nil
}

func (c JobService) UpdateStatus(ctx context.Context, id string, newStat model.Status) error {
	if err := uuid.Validate(id); err != nil {
		return model.ErrIncorrectID
	}

	logger := mwlogger.LoggerFromContext(ctx)

	if err := c.repo.UpdateStatus(ctx, id, newStat); err != nil {
		switch {
		case errors.Is(err, model.ErrJobNotFound):
			return model.ErrJobNotFound // 404
		default:
			logger.Error().Err(err).Msg("Failed to update job status in DB")
			return model.ErrCommon500 // 500
		}
	}

	return nil
}

func (c JobService) SaveResult(ctx context.Context, input *model.ExportJob) error {
	logger := mwlogger.LoggerFromContext(ctx)
	t := time.Now().UTC()
	input.UpdatedAt = &t
	if err := c.repo.SaveResult(ctx, input); err != nil {
		switch {
		case errors.Is(err, model.ErrJobNotFound):
			return model.ErrJobNotFound // 404
		default:
			logger.Error().Err(err).Msg("Failed to save job result in DB")
			return model.ErrCommon500 // 500
		}
	}

	return nil
}

// ReviveOrphans republishes jobs that got stuck in created/in_progress.
func (c JobService) ReviveOrphans(ctx context.Context, limit int) {
	logger := mwlogger.LoggerFromContext(ctx)

	orphans, err := c.repo.FetchOrphans(ctx, limit)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load orphans from DB")
		return
	}

	for _, v := range orphans {
		if err := c.publisher.SendWithRetry(ctx, retryStrategy, []byte(v), nil); err != nil {
			logger.Error().Err(err).Str("job", v).Msg("Failed to publish orphan to queue")
		}
	}
	if len(orphans) > 0 {
		logger.Info().Int("count", len(orphans)).Msg("Orphan jobs republished")
	}
}
