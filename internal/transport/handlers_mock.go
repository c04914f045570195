package transport

import (
	"context"
	"io"

	"github.com/UnendingLoop/MarkFlow/internal/model"
	"github.com/gin-gonic/gin"
)

type mockJobService struct {
	exportFn     func(ctx context.Context, req *model.WatermarkRequest) (model.CompositeResult, error)
	createFn     func(ctx context.Context, d *model.JobCreateData) (*model.ExportJob, error)
	getFn        func(ctx context.Context, id string) (*model.ExportJob, error)
	deleteFn     func(ctx context.Context, id string) error
	loadResultFn func(ctx context.Context, id string) (io.ReadCloser, string, error)
	getListFn    func(ctx context.Context, req *model.ListRequest) ([]model.ExportJob, error)
}

func (m *mockJobService) Export(ctx context.Context, req *model.WatermarkRequest) (model.CompositeResult, error) {
	return m.exportFn(ctx, req)
}

func (m *mockJobService) Create(ctx context.Context, d *model.JobCreateData) (*model.ExportJob, error) {
	return m.createFn(ctx, d)
}

func (m *mockJobService) Get(ctx context.Context, id string) (*model.ExportJob, error) {
	return m.getFn(ctx, id)
}

func (m *mockJobService) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

func (m *mockJobService) LoadResult(ctx context.Context, id string) (io.ReadCloser, string, error) {
	return m.loadResultFn(ctx, id)
}

func (m *mockJobService) GetList(ctx context.Context, req *model.ListRequest) ([]model.ExportJob, error) {
	return m.getListFn(ctx, req)
}

func init() {
	gin.SetMode(gin.TestMode)
}
