package exporter

import (
	"strings"

	"github.com/UnendingLoop/MarkFlow/internal/model"
)

// Validate проверяет запрос и подставляет позицию по умолчанию
func Validate(req *model.WatermarkRequest) error {
	hasPath := strings.TrimSpace(req.ImagePath) != ""
	hasData := strings.TrimSpace(req.ImageData) != ""
	switch {
	case !hasPath && !hasData:
		return model.ErrEmptySource
	case hasPath && hasData:
		return model.ErrAmbiguousSource
	}

	if strings.TrimSpace(req.ExportPath) == "" {
		return model.ErrEmptyExportPath
	}

	if !validFileName(req.FileName) {
		return model.ErrIncorrectFileName
	}

	for _, v := range []int{req.Opacity, req.Scale, req.X, req.Y} {
		if v < 0 || v > 100 {
			return model.ErrIncorrectRange
		}
	}

	if req.Position == "" {
		req.Position = model.DefaultPlacement
	}
	if !model.PlacementMap[req.Position] {
		return model.ErrIncorrectPlacement
	}

	return nil
}

// имя файла - только имя, без каталогов
func validFileName(name string) bool {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
