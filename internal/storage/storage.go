// Package storage connects the app to the object storage holding sources, watermarks and results
package storage

import (
	"context"
	"time"

	"github.com/UnendingLoop/MarkFlow/internal/config"
	"github.com/UnendingLoop/MarkFlow/internal/storage/miniostorage"
	"github.com/wb-go/wbf/zlog"
)

// NewObjectStorage keeps retrying until MinIO answers or ctx is canceled.
func NewObjectStorage(ctx context.Context, cfg *config.Settings, delay time.Duration) (*miniostorage.MinioObjectStorage, error) {
	for {
		zlog.Logger.Info().Str("endpoint", cfg.MinioEndpoint).Msg("Connecting to object storage...")
		client, err := miniostorage.NewMinioClient(ctx, cfg.MinioEndpoint, cfg.MinioUser, cfg.MinioPass, cfg.BucketName)
		if err == nil {
			zlog.Logger.Info().Msg("Successfully connected to object storage!")
			return client, nil
		}
		zlog.Logger.Warn().Err(err).Msgf("Failed to init connection to object storage, next retry in %v...", delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}
