package transport

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/UnendingLoop/MarkFlow/internal/model"
	"github.com/UnendingLoop/MarkFlow/internal/mwlogger"
)

// сколько байт нужно http.DetectContentType
const sniffLen = 512

func errorCodeDefiner(err error) int {
	switch {
	case errors.Is(err, model.ErrCommon500):
		return 500
	case errors.Is(err, model.ErrJobNotFound),
		errors.Is(err, model.ErrResultNotReady):
		return 404
	case errors.Is(err, model.ErrIncorrectQuery),
		errors.Is(err, model.ErrIncorrectID),
		errors.Is(err, model.ErrEmptySource),
		errors.Is(err, model.ErrAmbiguousSource),
		errors.Is(err, model.ErrEmptyWMark),
		errors.Is(err, model.ErrIncorrectPlacement),
		errors.Is(err, model.ErrIncorrectRange),
		errors.Is(err, model.ErrEmptyExportPath),
		errors.Is(err, model.ErrIncorrectFileName),
		errors.Is(err, model.ErrUnsupportedFormat),
		errors.Is(err, model.ErrExportPathOutside),
		errors.Is(err, model.ErrSourcePathDenied):
		return 400
	default:
		return 500
	}
}

// contentType доверяет заголовку части, а если он пустой или общий - смотрит в сами байты
func contentType(f io.ReadSeeker, header string) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
		return mt
	}

	buf := make([]byte, sniffLen)
	n, _ := io.ReadFull(f, buf)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return ""
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(buf[:n]))
	return mt
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}

func closeFileFlow(ctx context.Context, res io.ReadCloser) {
	if res == nil {
		return
	}
	if err := res.Close(); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Err(err).Msg("Handler failed to close fileflow")
	}
}
