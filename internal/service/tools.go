package service

import (
	"strings"

	"github.com/UnendingLoop/MarkFlow/internal/model"
)

// имя результата по умолчанию, расширение берется от исходника
const defaultResultName = "watermarked"

func validateQueryParams(req *model.ListRequest) {
	// Обрабатываем пустые значения, присваиваем дефолты если надо
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 30
	}

	// Валидируем поле типа сортировки
	req.Sort = strings.TrimSpace(strings.ToLower(req.Sort))
	switch {
	case strings.Contains(req.Sort, model.ByUUID):
		req.Sort = "job_uid"
	default:
		req.Sort = "created_at" // по дефолту ставим сортировку по времени создания
	}

	// Валидируем порядок
	req.Order = strings.TrimSpace(strings.ToLower(req.Order))
	switch {
	case strings.Contains(req.Order, model.OrderASC):
		req.Order = "ASC"
	default:
		req.Order = "DESC" // по дефолту ставим сортировку "новое-выше"
	}
}

func validateNormalizeJob(raw *model.JobCreateData, clean *model.ExportJob) error {
	// корректен ли исходник
	if raw.OrigImg == nil || raw.OrigImgSize <= 0 || !model.InImageTypeMap[raw.OrigContentType] {
		return model.ErrEmptySource
	}
	clean.SourceCType = raw.OrigContentType

	// ватермарк не обязателен, но если есть - должен быть картинкой
	if raw.WMImg != nil && (raw.WMImgSize <= 0 || !model.InImageTypeMap[raw.WMContentType]) {
		return model.ErrEmptyWMark
	}

	// позиция
	clean.Position = model.Placement(strings.TrimSpace(strings.ToLower(raw.Position)))
	if clean.Position == "" {
		clean.Position = model.DefaultPlacement
	}
	if !model.PlacementMap[clean.Position] {
		return model.ErrIncorrectPlacement
	}

	// числовые параметры
	for _, v := range []int{raw.Opacity, raw.Scale, raw.X, raw.Y} {
		if v < 0 || v > 100 {
			return model.ErrIncorrectRange
		}
	}
	clean.Opacity, clean.Scale, clean.X, clean.Y = raw.Opacity, raw.Scale, raw.X, raw.Y
	clean.AdaptiveColor = raw.AdaptiveColor

	// имя файла результата
	clean.FileName = strings.TrimSpace(raw.FileName)
	if clean.FileName == "" {
		ext := model.GetImageFileExt[raw.OrigContentType]
		if raw.OrigContentType == model.WEBP {
			ext = model.GetImageFileExt[model.PNG] // webp кодировать не умеем
		}
		clean.FileName = defaultResultName + ext
	}
	if clean.FileName == "." || clean.FileName == ".." || strings.ContainsAny(clean.FileName, `/\`) {
		return model.ErrIncorrectFileName
	}

	return nil
}
