package main

import (
	"context"
	"io"

	"github.com/UnendingLoop/MarkFlow/internal/model"
)

type JobAPIService interface {
	Export(ctx context.Context, req *model.WatermarkRequest) (model.CompositeResult, error)
	Create(ctx context.Context, data *model.JobCreateData) (*model.ExportJob, error)
	Get(ctx context.Context, id string) (*model.ExportJob, error)
	LoadResult(ctx context.Context, id string) (io.ReadCloser, string, error)
	GetList(ctx context.Context, req *model.ListRequest) ([]model.ExportJob, error)
	Delete(ctx context.Context, id string) error
	ReviveOrphans(ctx context.Context, limit int)
}
