// Package model provides data-structs for internal app-usage
package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

type (
	Status    string
	Placement string
)

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusFailed     Status = "failed"
	StatusDone       Status = "done"
)

// OrphanTimeout - сколько задача может висеть в created/in_progress без обновлений,
// прежде чем ее переотправят в очередь и другой воркер сможет ее забрать
const OrphanTimeout = 10 * time.Minute

var StatusMap = map[Status]bool{
	StatusCreated:    true,
	StatusInProgress: true,
	StatusFailed:     true,
	StatusDone:       true,
}

const (
	PlaceTopLeft     Placement = "top-left"
	PlaceTopRight    Placement = "top-right"
	PlaceBottomLeft  Placement = "bottom-left"
	PlaceBottomRight Placement = "bottom-right"
	PlaceCenter      Placement = "center"
	PlaceCustom      Placement = "custom"
)

// DefaultPlacement is used when a request carries no position at all
const DefaultPlacement = PlaceBottomRight

var PlacementMap = map[Placement]bool{
	PlaceTopLeft:     true,
	PlaceTopRight:    true,
	PlaceBottomLeft:  true,
	PlaceBottomRight: true,
	PlaceCenter:      true,
	PlaceCustom:      true,
}

//---------------------

// WatermarkRequest describes one "add watermark and export" call.
// JSON names follow the desktop client that used to call this operation.
type WatermarkRequest struct {
	ImagePath     string    `json:"imagePath,omitempty"`
	ImageData     string    `json:"imageData,omitempty"`
	WatermarkData string    `json:"watermarkData,omitempty"`
	ExportPath    string    `json:"exportPath"`
	FileName      string    `json:"fileName"`
	Position      Placement `json:"position,omitempty"`
	Opacity       int       `json:"opacity"`
	Scale         int       `json:"scale"`
	X             int       `json:"x"`
	Y             int       `json:"y"`
	AdaptiveColor bool      `json:"isFanse"`
}

// CompositeResult - то, что получает вызывающая сторона после экспорта
type CompositeResult struct {
	Success    bool   `json:"success"`
	OutputPath string `json:"outputPath,omitempty"`
	Error      string `json:"error,omitempty"`
}

//---------------------

type ExportJob struct {
	UID           uuid.UUID   `json:"uid"`
	SourceKey     string      `json:"-"`
	WatermarkKey  string      `json:"-"`
	ResultKey     string      `json:"-"`
	SourceCType   string      `json:"source_content_type,omitempty"`
	FileName      string      `json:"file_name"`
	Position      Placement   `json:"position"`
	Opacity       int         `json:"opacity"`
	Scale         int         `json:"scale"`
	X             int         `json:"x"`
	Y             int         `json:"y"`
	AdaptiveColor bool        `json:"adaptive_color"`
	Status        Status      `json:"status,omitempty"`
	ErrMsg        StringSlice `json:"error,omitempty"`
	OutputPath    string      `json:"output_path,omitempty"`
	CreatedAt     *time.Time  `json:"created_at,omitempty"`
	UpdatedAt     *time.Time  `json:"updated_at,omitempty"`
}

//-------------------

type ListRequest struct {
	Page  int    `form:"page"`
	Limit int    `form:"limit"`
	Sort  string `form:"sort"`
	Order string `form:"order"`
}

const (
	ByUUID    = "uid"
	ByCreated = "created"
	OrderASC  = "ascend"
	OrderDESC = "descend"
)

type JobCreateData struct {
	FileName        string
	Position        string
	Opacity         int
	Scale           int
	X               int
	Y               int
	AdaptiveColor   bool
	OrigImg         io.Reader
	OrigContentType string
	OrigImgSize     int64
	WMImg           io.Reader
	WMContentType   string
	WMImgSize       int64
}

// ------------------

var (
	ErrCommon500          error = errors.New("something went wrong. Try again later")     // 500
	ErrIncorrectQuery     error = errors.New("incorrect query parameters")                // 400
	ErrIncorrectID        error = errors.New("incorrect job UUID")                        // 400
	ErrJobNotFound        error = errors.New("specified job UUID doesn't exist")          // 404
	ErrResultNotReady     error = errors.New("requested job is not processed yet")        // 404
	ErrEmptySource        error = errors.New("empty/incorrect source image provided")     // 400
	ErrAmbiguousSource    error = errors.New("exactly one of imagePath/imageData needed") // 400
	ErrEmptyWMark         error = errors.New("empty/incorrect watermark provided")        // 400
	ErrIncorrectPlacement error = errors.New("unknown watermark position")                // 400
	ErrIncorrectRange     error = errors.New("opacity, scale, x and y must be in 0..100") // 400
	ErrEmptyExportPath    error = errors.New("export directory is required")              // 400
	ErrIncorrectFileName  error = errors.New("incorrect output file name")                // 400
	ErrUnsupportedFormat  error = errors.New("unsupported image format")                  // 400
	ErrExportPathOutside  error = errors.New("export path must stay inside export dir")   // 400
	ErrSourcePathDenied   error = errors.New("imagePath is not accepted, send imageData") // 400
)

// ошибки конвейера экспорта
var (
	ErrDecode     error = errors.New("failed to decode image")
	ErrEncode     error = errors.New("failed to encode image")
	ErrExif       error = errors.New("failed to preserve EXIF metadata")
	ErrFilesystem error = errors.New("failed to write export file")
)

//--------------------

const (
	JPEG = "image/jpeg"
	PNG  = "image/png"
	GIF  = "image/gif"
	BMP  = "image/bmp"
	WEBP = "image/webp"
	TIFF = "image/tiff"
)

var GetImageFileExt = map[string]string{
	JPEG: ".jpg",
	PNG:  ".png",
	GIF:  ".gif",
	BMP:  ".bmp",
	WEBP: ".webp",
	TIFF: ".tif",
}

var InImageTypeMap = map[string]bool{
	JPEG: true,
	PNG:  true,
	GIF:  true,
	BMP:  true,
	WEBP: true,
}

var GetCType = map[imaging.Format]string{
	imaging.JPEG: JPEG,
	imaging.GIF:  GIF,
	imaging.PNG:  PNG,
	imaging.BMP:  BMP,
	imaging.TIFF: TIFF,
}

//--------------------

type StringSlice []string

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = []string{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("invalid type for StringSlice")
	}

	if err := json.Unmarshal(b, s); err != nil {
		return fmt.Errorf("failed to unmarshal JSONB to []StringSlice: %w", err)
	}
	return nil
}

func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 || s == nil {
		return []byte(`[]`), nil
	}
	res, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal []StringSlice to JSONB: %w", err)
	}

	return res, nil
}
