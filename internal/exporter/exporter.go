// Package exporter runs one "add watermark and export" request end to end:
// decode, composite, encode, carry EXIF over and write the file.
package exporter

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/UnendingLoop/MarkFlow/internal/exifmeta"
	"github.com/UnendingLoop/MarkFlow/internal/imageproc"
	"github.com/UnendingLoop/MarkFlow/internal/model"
	"github.com/UnendingLoop/MarkFlow/internal/mwlogger"
	"github.com/disintegration/imaging"
)

type Exporter struct {
	encodeOpts imageproc.EncodeOptions
}

func New(opts imageproc.EncodeOptions) *Exporter {
	return &Exporter{encodeOpts: opts}
}

// Export never returns an error: every failure ends up in CompositeResult.Error.
// Nothing is written unless all steps before the write succeeded.
func (e *Exporter) Export(ctx context.Context, req *model.WatermarkRequest) model.CompositeResult {
	logger := mwlogger.LoggerFromContext(ctx)

	outPath, err := e.export(ctx, req)
	if err != nil {
		logger.Error().Err(err).Str("file", req.FileName).Msg("Watermark export failed")
		return model.CompositeResult{Success: false, Error: err.Error()}
	}

	logger.Info().Str("output", outPath).Msg("Watermark export finished")
	return model.CompositeResult{Success: true, OutputPath: outPath}
}

func (e *Exporter) export(ctx context.Context, req *model.WatermarkRequest) (string, error) {
	if req == nil {
		return "", model.ErrEmptySource
	}
	if err := Validate(req); err != nil {
		return "", err
	}

	src, err := loadSource(req)
	if err != nil {
		return "", err
	}

	canvas, _, err := imageproc.Decode(src.data)
	if err != nil {
		return "", fmt.Errorf("source: %w", err)
	}

	if req.WatermarkData != "" {
		if err := e.applyWatermark(canvas, req); err != nil {
			return "", err
		}
	}

	format := imageproc.OutputFormat(req.FileName)
	encoded, err := imageproc.Encode(canvas, format, e.encodeOpts)
	if err != nil {
		return "", err
	}

	if format == imaging.JPEG && src.IsJPEG() {
		encoded = preserveExif(ctx, src.data, encoded)
	}

	return writeExport(req.ExportPath, req.FileName, encoded)
}

func (e *Exporter) applyWatermark(canvas *image.NRGBA, req *model.WatermarkRequest) error {
	_, wmData, err := ParseDataURL(req.WatermarkData)
	if err != nil {
		return fmt.Errorf("%w: watermark: %v", model.ErrDecode, err)
	}

	wm, _, err := imageproc.Decode(wmData)
	if err != nil {
		return fmt.Errorf("watermark: %w", err)
	}

	_, err = imageproc.ApplyWatermark(canvas, wm, imageproc.Options{
		Placement: imageproc.PlacementOptions{
			Position: req.Position,
			Scale:    req.Scale,
			AnchorX:  req.X,
			AnchorY:  req.Y,
		},
		Opacity:  req.Opacity,
		Adaptive: req.AdaptiveColor,
	})
	return err
}

// ошибки EXIF не фатальны: пишем в лог и отдаем то, что закодировали
func preserveExif(ctx context.Context, original, encoded []byte) []byte {
	out, err := exifmeta.Preserve(original, encoded)
	if err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Err(err).Msg("EXIF metadata dropped")
	}
	return out
}

func writeExport(dir, name string, data []byte) (string, error) {
	// MkdirAll идемпотентен, параллельные экспорты в один каталог не мешают друг другу
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrFilesystem, err)
	}

	outPath := filepath.Join(dir, name)
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrFilesystem, err)
	}
	return outPath, nil
}
