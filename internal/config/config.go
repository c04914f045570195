// Package config reads app settings from env and .env into a typed struct
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/UnendingLoop/MarkFlow/internal/imageproc"
	wbfconfig "github.com/wb-go/wbf/config"
)

// Source - то, что нужно от конфига; удобно подменять в тестах
type Source interface {
	GetString(key string) string
}

type Settings struct {
	AppPort  string
	GinMode  string
	LogLevel string

	PostgresDSN string

	KafkaBroker  string
	KafkaTopic   string
	KafkaGroupID string

	MinioUser     string
	MinioPass     string
	MinioEndpoint string
	BucketName    string

	SourceKeyPrefix    string
	WatermarkKeyPrefix string
	ResultKeyPrefix    string

	ExportDir string
	Encode    imageproc.EncodeOptions
}

// Load enables env lookup, reads envFile if given and builds Settings.
func Load(envFile string) (*wbfconfig.Config, *Settings, error) {
	appConfig := wbfconfig.New()
	appConfig.EnableEnv("")
	if envFile != "" {
		if err := appConfig.LoadEnvFiles(envFile); err != nil {
			return nil, nil, fmt.Errorf("load env file %q: %w", envFile, err)
		}
	}

	s, err := FromSource(appConfig)
	if err != nil {
		return nil, nil, err
	}
	return appConfig, s, nil
}

func FromSource(src Source) (*Settings, error) {
	s := &Settings{
		AppPort:  get(src, "APP_PORT", "8080"),
		GinMode:  get(src, "GIN_MODE", "release"),
		LogLevel: get(src, "LOG_LEVEL", "info"),

		PostgresDSN: src.GetString("POSTGRES_DSN"),

		KafkaBroker:  get(src, "KAFKA_BROKER", "localhost:9092"),
		KafkaTopic:   get(src, "KAFKA_TOPIC", "export-jobs"),
		KafkaGroupID: get(src, "KAFKA_GROUPID", "markflow-worker"),

		MinioUser:     src.GetString("MINIO_USER"),
		MinioPass:     src.GetString("MINIO_PASS"),
		MinioEndpoint: get(src, "MINIO_CONTAINER_NAME", "localhost:9000"),
		BucketName:    get(src, "BUCKET_NAME", "markflow"),

		SourceKeyPrefix:    get(src, "SOURCE_KEY", "source/"),
		WatermarkKeyPrefix: get(src, "WATERMARK_KEY", "watermark/"),
		ResultKeyPrefix:    get(src, "RESULT_KEY", "result/"),

		ExportDir: get(src, "EXPORT_DIR", "./exports"),
		Encode:    imageproc.DefaultEncodeOptions(),
	}

	var err error
	if s.Encode.PNGCompression, err = getInt(src, "PNG_COMPRESSION", imageproc.DefaultPNGCompression, 0, 9); err != nil {
		return nil, err
	}
	if s.Encode.JPEGQuality, err = getInt(src, "JPEG_QUALITY", imageproc.DefaultJPEGQuality, 1, 100); err != nil {
		return nil, err
	}

	return s, nil
}

func get(src Source, key, def string) string {
	if v := strings.TrimSpace(src.GetString(key)); v != "" {
		return v
	}
	return def
}

func getInt(src Source, key string, def, lo, hi int) (int, error) {
	raw := strings.TrimSpace(src.GetString(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be in %d..%d, got %d", key, lo, hi, v)
	}
	return v, nil
}
