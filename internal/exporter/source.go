package exporter

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/UnendingLoop/MarkFlow/internal/model"
)

// source - исходные байты картинки и то, откуда они пришли
type source struct {
	data  []byte
	path  string
	ctype string // MIME из data URL, для файла пустой
}

// IsJPEG reports whether the source was a JPEG judging by file extension or data URL MIME.
func (s source) IsJPEG() bool {
	if s.path != "" {
		ext := strings.ToLower(filepath.Ext(s.path))
		return ext == ".jpg" || ext == ".jpeg"
	}
	return s.ctype == model.JPEG || s.ctype == "image/jpg"
}

func loadSource(req *model.WatermarkRequest) (source, error) {
	if req.ImagePath != "" {
		data, err := os.ReadFile(req.ImagePath)
		if err != nil {
			return source{}, fmt.Errorf("%w: read %q: %v", model.ErrDecode, req.ImagePath, err)
		}
		return source{data: data, path: req.ImagePath}, nil
	}

	ctype, data, err := ParseDataURL(req.ImageData)
	if err != nil {
		return source{}, fmt.Errorf("%w: source: %v", model.ErrDecode, err)
	}
	return source{data: data, ctype: ctype}, nil
}

// ParseDataURL decodes "data:<mime>;base64,<payload>". A bare base64 string is accepted too,
// its MIME is then empty.
func ParseDataURL(input string) (string, []byte, error) {
	input = strings.TrimSpace(input)
	payload := input
	ctype := ""

	if strings.HasPrefix(strings.ToLower(input), "data:") {
		idx := strings.Index(input, ",")
		if idx == -1 {
			return "", nil, errors.New("data URL without payload")
		}
		meta := input[len("data:"):idx]
		payload = input[idx+1:]

		if !strings.HasSuffix(strings.ToLower(meta), ";base64") {
			return "", nil, errors.New("only base64 data URLs are supported")
		}
		ctype = strings.ToLower(strings.TrimSpace(meta[:len(meta)-len(";base64")]))
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode base64: %w", err)
	}
	if len(data) == 0 {
		return "", nil, errors.New("empty payload")
	}
	return ctype, data, nil
}

// DataURL builds a base64 data URL from raw bytes.
func DataURL(ctype string, data []byte) string {
	return "data:" + ctype + ";base64," + base64.StdEncoding.EncodeToString(data)
}
