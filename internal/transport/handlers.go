// Package transport provides methods for processing requests from endpoints
package transport

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/UnendingLoop/MarkFlow/internal/model"
	"github.com/UnendingLoop/MarkFlow/internal/mwlogger"
	"github.com/wb-go/wbf/ginext"
)

type JobHandler struct {
	service JobService
}

type JobService interface {
	Export(ctx context.Context, req *model.WatermarkRequest) (model.CompositeResult, error) // синхронный экспорт
	Create(ctx context.Context, data *model.JobCreateData) (*model.ExportJob, error)
	Get(ctx context.Context, id string) (*model.ExportJob, error)
	Delete(ctx context.Context, id string) error                                    // удалить как в базе, так и в minio
	LoadResult(ctx context.Context, id string) (io.ReadCloser, string, error)       // прям скачать результат
	GetList(ctx context.Context, req *model.ListRequest) ([]model.ExportJob, error) // получить список
}

func NewJobHandler(svc JobService) *JobHandler {
	return &JobHandler{
		service: svc,
	}
}

func (h JobHandler) SimplePinger(ctx *ginext.Context) {
	ctx.JSON(200, map[string]string{"message": "pong"})
}

// Export - синхронное наложение ватермарка, ответ всегда CompositeResult
func (h JobHandler) Export(ctx *ginext.Context) {
	var req model.WatermarkRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(400, model.CompositeResult{Success: false, Error: "failed to parse request body"})
		return
	}

	res, err := h.service.Export(ctx.Request.Context(), &req)
	if err != nil {
		// ошибки запроса - 400, тело ответа все равно CompositeResult
		ctx.JSON(errorCodeDefiner(err), res)
		return
	}
	if !res.Success {
		ctx.JSON(http.StatusUnprocessableEntity, res)
		return
	}

	ctx.JSON(200, res)
}

func (h JobHandler) Create(ctx *ginext.Context) {
	var data model.JobCreateData
	data.FileName = ctx.PostForm("file_name")
	data.Position = ctx.PostForm("position")
	data.AdaptiveColor = parseBool(ctx.PostForm("isFanse"))

	// числовые поля опциональны, но если есть - должны быть числами
	for _, f := range []struct {
		key string
		dst *int
	}{
		{"opacity", &data.Opacity},
		{"scale", &data.Scale},
		{"x", &data.X},
		{"y", &data.Y},
	} {
		raw := strings.TrimSpace(ctx.PostForm(f.key))
		if raw == "" {
			continue
		}
		val, err := strconv.Atoi(raw)
		if err != nil {
			ctx.JSON(400, map[string]string{"error": model.ErrIncorrectQuery.Error()})
			return
		}
		*f.dst = val
	}

	// парсинг исходника
	imageFile, imageHeader, err := ctx.Request.FormFile("image")
	if err != nil {
		ctx.JSON(400, map[string]string{"error": "image is required"})
		return
	}
	defer closeFileFlow(ctx.Request.Context(), imageFile)
	data.OrigImg = imageFile
	data.OrigContentType = contentType(imageFile, imageHeader.Header.Get("Content-Type"))
	data.OrigImgSize = imageHeader.Size

	// парсинг ватермарка если есть
	wmFile, wmHeader, err := ctx.Request.FormFile("watermark")
	if err == nil {
		defer closeFileFlow(ctx.Request.Context(), wmFile)
		data.WMImg = wmFile
		data.WMContentType = contentType(wmFile, wmHeader.Header.Get("Content-Type"))
		data.WMImgSize = wmHeader.Size
	}

	// передаем в сервис
	res, err := h.service.Create(ctx.Request.Context(), &data)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(201, res)
}

func (h JobHandler) GetAllJobs(ctx *ginext.Context) {
	var req model.ListRequest

	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(400, map[string]string{"error": "failed to parse query-params"})
		return
	}

	res, err := h.service.GetList(ctx.Request.Context(), &req)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}

func (h JobHandler) GetJob(ctx *ginext.Context) {
	res, err := h.service.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}

func (h JobHandler) LoadResult(ctx *ginext.Context) {
	id := ctx.Param("id")

	res, cType, err := h.service.LoadResult(ctx.Request.Context(), id)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	defer closeFileFlow(ctx.Request.Context(), res)

	ctx.Writer.Header().Set("Content-Type", cType)
	ctx.Writer.WriteHeader(200)
	if n, err := io.Copy(ctx.Writer, res); err != nil {
		logger := mwlogger.LoggerFromContext(ctx.Request.Context())
		logger.Error().Err(err).Int64("written", n).Str("job", id).Msg("Failed to write result to response")
	}
}

func (h JobHandler) Delete(ctx *ginext.Context) {
	id := ctx.Param("id")
	if err := h.service.Delete(ctx.Request.Context(), id); err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.Status(204)
}
