// Package worker consumes export jobs from the queue and runs the watermark pipeline for them
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/UnendingLoop/MarkFlow/internal/exporter"
	"github.com/UnendingLoop/MarkFlow/internal/imageproc"
	"github.com/UnendingLoop/MarkFlow/internal/model"
	"github.com/UnendingLoop/MarkFlow/internal/mwlogger"
	"github.com/UnendingLoop/MarkFlow/internal/service"
	kafkago "github.com/segmentio/kafka-go"
)

var (
	errAlreadyInProgress = errors.New("job is already in progress")
	errJobFailed         = errors.New("job marked as failed")
)

type JobWorkerService interface {
	UpdateStatus(ctx context.Context, id string, newStat model.Status) error
	SaveResult(ctx context.Context, res *model.ExportJob) error
	Get(ctx context.Context, id string) (*model.ExportJob, error)
}

// Committer - подтверждение обработки сообщения очереди
type Committer interface {
	Commit(ctx context.Context, msg kafkago.Message) error
}

type Worker struct {
	storage      service.ObjectStorage
	service      JobWorkerService
	exporter     service.Exporter
	queue        <-chan kafkago.Message
	committer    Committer
	resultPrefix string
	exportDir    string
}

func NewWorkerInstance(strg service.ObjectStorage, svc JobWorkerService, exp service.Exporter, q <-chan kafkago.Message, cmt Committer, resPr, exportDir string) *Worker {
	return &Worker{
		storage:      strg,
		service:      svc,
		exporter:     exp,
		queue:        q,
		committer:    cmt,
		resultPrefix: resPr,
		exportDir:    exportDir,
	}
}

// StartWorker handles queue messages one by one until ctx is done or the queue is closed.
func (w *Worker) StartWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-w.queue:
			if !ok {
				logger := mwlogger.LoggerFromContext(ctx)
				logger.Info().Msg("Queue channel closed, stopping worker...")
				return
			}
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg kafkago.Message) {
	id := string(msg.Key)
	jobCtx := mwlogger.ContextWithJob(ctx, id)
	logger := mwlogger.LoggerFromContext(jobCtx)

	err := w.initProcessor(jobCtx, id)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrJobNotFound), errors.Is(err, errAlreadyInProgress):
		// повторно обрабатывать нечего, сообщение подтверждаем
		logger.Warn().Err(err).Msg("Job skipped")
	case errors.Is(err, errJobFailed):
		// статус failed уже в базе, он финальный
		logger.Error().Err(err).Msg("Job failed")
	default:
		// без коммита: сообщение вернется после рестарта, зависшие задачи подберет recovery loop
		logger.Error().Err(err).Msg("Job processing interrupted")
		return
	}

	if err := w.committer.Commit(ctx, msg); err != nil {
		logger.Error().Err(err).Msg("Failed to commit queue-message")
	}
}

func (w *Worker) initProcessor(ctx context.Context, id string) error {
	// считать из базы задачу
	task, err := w.service.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("worker failed to fetch job %q from DB: %w", id, err)
	}
	// проверить статус
	switch task.Status {
	case model.StatusDone, model.StatusFailed:
		return nil
	case model.StatusInProgress:
		if !stale(task, time.Now()) {
			return errAlreadyInProgress
		}
		// прежний воркер умер посреди экспорта - забираем задачу себе
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Time("updated_at", *task.UpdatedAt).Msg("Taking over stale in_progress job")
	}

	// обновить статус
	if err := w.service.UpdateStatus(ctx, id, model.StatusInProgress); err != nil {
		return fmt.Errorf("failed to update status of job %q to `in_progress` in DB: %w", id, err)
	}

	// выполняем саму операцию
	if pErr := w.processTask(ctx, task); pErr != nil {
		task.Status = model.StatusFailed
		task.ErrMsg = append(task.ErrMsg, pErr.Error())
		if uErr := w.service.SaveResult(ctx, task); uErr != nil {
			return fmt.Errorf("failed to set status of job %q to `failed` in DB: %w \nAFTER\n error while processing job: %w", id, uErr, pErr)
		}
		return fmt.Errorf("%w: job %q: %w", errJobFailed, id, pErr)
	}

	return nil
}

// stale reports whether an in_progress job went without updates for longer than the orphan timeout
func stale(task *model.ExportJob, now time.Time) bool {
	return task.UpdatedAt != nil && now.Sub(*task.UpdatedAt) >= model.OrphanTimeout
}

func (w *Worker) processTask(ctx context.Context, task *model.ExportJob) error {
	// достать из storage исходники
	src, srcCType, err := w.fetch(ctx, task.SourceKey)
	if err != nil {
		return fmt.Errorf("worker failed to fetch source image from storage: %w", err)
	}
	if task.SourceCType != "" {
		srcCType = task.SourceCType
	}

	req := &model.WatermarkRequest{
		ImageData:     exporter.DataURL(srcCType, src),
		ExportPath:    filepath.Join(w.exportDir, task.UID.String()),
		FileName:      task.FileName,
		Position:      task.Position,
		Opacity:       task.Opacity,
		Scale:         task.Scale,
		X:             task.X,
		Y:             task.Y,
		AdaptiveColor: task.AdaptiveColor,
	}

	if task.WatermarkKey != "" {
		wm, wmCType, err := w.fetch(ctx, task.WatermarkKey)
		if err != nil {
			return fmt.Errorf("worker failed to fetch watermark from storage: %w", err)
		}
		req.WatermarkData = exporter.DataURL(wmCType, wm)
	}

	// выполнить экспорт
	res := w.exporter.Export(ctx, req)
	if !res.Success {
		return fmt.Errorf("export failed: %s", res.Error)
	}

	// положить результат в сторедж
	resCType := model.GetCType[imageproc.OutputFormat(task.FileName)]
	resKey := w.resultPrefix + task.UID.String() + "/" + task.FileName
	if err := w.upload(ctx, res.OutputPath, resKey, resCType); err != nil {
		return fmt.Errorf("worker failed to put result image to storage: %w", err)
	}

	task.Status = model.StatusDone
	task.ResultKey = resKey
	task.OutputPath = res.OutputPath

	// обновить запись в БД
	if err := w.service.SaveResult(ctx, task); err != nil {
		return fmt.Errorf("worker failed to save result to DB: %w", err)
	}
	return nil
}

func (w *Worker) fetch(ctx context.Context, key string) ([]byte, string, error) {
	r, ctype, err := w.storage.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	defer closeFileFlow(ctx, r)

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), ctype, nil
}

func (w *Worker) upload(ctx context.Context, path, key, ctype string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer closeFileFlow(ctx, f)

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return w.storage.Put(ctx, key, info.Size(), ctype, f)
}

func closeFileFlow(ctx context.Context, res io.ReadCloser) {
	if res == nil {
		return
	}

	if err := res.Close(); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Err(err).Msg("Worker failed to close fileflow")
	}
}
