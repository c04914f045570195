package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"path/filepath"
	"testing"

	"github.com/UnendingLoop/MarkFlow/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"
)

const testImageData = "data:image/png;base64,AAAA"

// EXPORT - path goes under export root
func TestJobService_Export_ResolvesPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantPath string
	}{
		{name: "relative", path: "client/a", wantPath: filepath.Join("/srv/exports", "client/a")},
		{name: "dot is the root", path: ".", wantPath: "/srv/exports"},
		{name: "inner dots are cleaned", path: "a/../b", wantPath: filepath.Join("/srv/exports", "b")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := &mockExporter{
				exportFn: func(ctx context.Context, req *model.WatermarkRequest) model.CompositeResult {
					require.Equal(t, tt.wantPath, req.ExportPath)
					return model.CompositeResult{Success: true, OutputPath: filepath.Join(req.ExportPath, req.FileName)}
				},
			}

			svc := JobService{exporter: exp, exportDir: "/srv/exports"}
			res, err := svc.Export(context.Background(), &model.WatermarkRequest{ImageData: testImageData, ExportPath: tt.path, FileName: "x.png"})
			require.NoError(t, err)
			require.True(t, res.Success)
		})
	}
}

// EXPORT - запрос отклоняется до запуска конвейера
func TestJobService_Export_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		req     model.WatermarkRequest
		wantErr error
	}{
		{
			name:    "parent escape",
			req:     model.WatermarkRequest{ImageData: testImageData, ExportPath: "../../etc/cron.d", FileName: "x.png"},
			wantErr: model.ErrExportPathOutside,
		},
		{
			name:    "hidden parent escape",
			req:     model.WatermarkRequest{ImageData: testImageData, ExportPath: "a/../../b", FileName: "x.png"},
			wantErr: model.ErrExportPathOutside,
		},
		{
			name:    "absolute path",
			req:     model.WatermarkRequest{ImageData: testImageData, ExportPath: "/etc/cron.d", FileName: "x.png"},
			wantErr: model.ErrExportPathOutside,
		},
		{
			name:    "server-side source path",
			req:     model.WatermarkRequest{ImagePath: "/etc/secret.png", ExportPath: "out", FileName: "x.png"},
			wantErr: model.ErrSourcePathDenied,
		},
		{
			name:    "empty export path",
			req:     model.WatermarkRequest{ImageData: testImageData, FileName: "x.png"},
			wantErr: model.ErrEmptyExportPath,
		},
		{
			name:    "range",
			req:     model.WatermarkRequest{ImageData: testImageData, ExportPath: "out", FileName: "x.png", Opacity: 101},
			wantErr: model.ErrIncorrectRange,
		},
		{
			name:    "placement",
			req:     model.WatermarkRequest{ImageData: testImageData, ExportPath: "out", FileName: "x.png", Position: "middle"},
			wantErr: model.ErrIncorrectPlacement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := &mockExporter{
				exportFn: func(ctx context.Context, req *model.WatermarkRequest) model.CompositeResult {
					t.Fatal("exporter must not be called")
					return model.CompositeResult{}
				},
			}

			svc := JobService{exporter: exp, exportDir: "/srv/exports"}
			req := tt.req
			res, err := svc.Export(context.Background(), &req)
			require.ErrorIs(t, err, tt.wantErr)
			require.False(t, res.Success)
			require.Equal(t, tt.wantErr.Error(), res.Error)
		})
	}
}

// CREATE - SUCCESS
func TestJobService_Create_OK(t *testing.T) {
	ctx := context.Background()
	var putKeys []string

	repo := &mockRepo{
		createFn: func(ctx context.Context, job *model.ExportJob) error {
			require.NotEmpty(t, job.UID)
			require.Equal(t, model.StatusCreated, job.Status)
			require.Equal(t, model.PlaceBottomRight, job.Position)
			require.Equal(t, "watermarked.jpg", job.FileName)
			return nil
		},
	}

	storage := &mockStorage{
		putFn: func(ctx context.Context, key string, size int64, ct string, r io.Reader) error {
			putKeys = append(putKeys, key)
			return nil
		},
	}

	pub := &mockPublisher{
		sendFn: func(ctx context.Context, s retry.Strategy, key []byte, v []byte) error {
			require.NotEmpty(t, key)
			return nil
		},
	}

	svc := JobService{
		repo:         repo,
		storage:      storage,
		publisher:    pub,
		srcKeyPrefix: "src/",
		wmKeyPrefix:  "wm/",
	}

	job, err := svc.Create(ctx, validCreateData())
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, []string{
		"src/" + job.UID.String() + ".jpg",
		"wm/" + job.UID.String() + ".png",
	}, putKeys)
}

// CREATE - VALIDATION FAIL
func TestJobService_Create_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *model.JobCreateData)
		wantErr error
	}{
		{
			name:    "no source",
			mutate:  func(d *model.JobCreateData) { d.OrigImg = nil },
			wantErr: model.ErrEmptySource,
		},
		{
			name:    "source not an image",
			mutate:  func(d *model.JobCreateData) { d.OrigContentType = "text/plain" },
			wantErr: model.ErrEmptySource,
		},
		{
			name:    "bad watermark",
			mutate:  func(d *model.JobCreateData) { d.WMContentType = "application/pdf" },
			wantErr: model.ErrEmptyWMark,
		},
		{
			name:    "unknown position",
			mutate:  func(d *model.JobCreateData) { d.Position = "somewhere" },
			wantErr: model.ErrIncorrectPlacement,
		},
		{
			name:    "scale too big",
			mutate:  func(d *model.JobCreateData) { d.Scale = 150 },
			wantErr: model.ErrIncorrectRange,
		},
		{
			name:    "file name with path",
			mutate:  func(d *model.JobCreateData) { d.FileName = "../../etc/passwd" },
			wantErr: model.ErrIncorrectFileName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validCreateData()
			tt.mutate(data)

			_, err := JobService{}.Create(context.Background(), data)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// CREATE - STORAGE PUT FAIL
func TestJobService_Create_StorageError(t *testing.T) {
	repo := &mockRepo{}
	storage := &mockStorage{
		putFn: func(ctx context.Context, key string, size int64, ct string, r io.Reader) error {
			return errors.New("storage is down")
		},
	}

	svc := JobService{
		repo:         repo,
		storage:      storage,
		srcKeyPrefix: "src/",
	}

	_, err := svc.Create(context.Background(), validCreateData())
	require.ErrorIs(t, err, model.ErrCommon500)
}

// CREATE - QUEUE FAIL
func TestJobService_Create_PublishError(t *testing.T) {
	svc := JobService{
		repo: &mockRepo{createFn: func(ctx context.Context, job *model.ExportJob) error { return nil }},
		storage: &mockStorage{putFn: func(ctx context.Context, key string, size int64, ct string, r io.Reader) error {
			return nil
		}},
		publisher: &mockPublisher{sendFn: func(ctx context.Context, s retry.Strategy, key []byte, v []byte) error {
			return errors.New("kafka is down")
		}},
	}

	_, err := svc.Create(context.Background(), validCreateData())
	require.ErrorIs(t, err, model.ErrCommon500)
}

// GETLIST - SUCCESS
func TestJobService_GetList_OK(t *testing.T) {
	repo := &mockRepo{
		getListFn: func(ctx context.Context, req *model.ListRequest) ([]model.ExportJob, error) {
			require.Equal(t, 1, req.Page)
			require.Equal(t, 30, req.Limit)
			require.Equal(t, "created_at", req.Sort)
			require.Equal(t, "DESC", req.Order)
			return []model.ExportJob{{UID: uuid.New()}}, nil
		},
	}

	svc := JobService{repo: repo}

	res, err := svc.GetList(context.Background(), &model.ListRequest{})
	require.NoError(t, err)
	require.Len(t, res, 1)
}

func TestValidateQueryParams(t *testing.T) {
	req := &model.ListRequest{Page: 3, Limit: 500, Sort: " UID ", Order: "Ascend"}
	validateQueryParams(req)

	require.Equal(t, model.ListRequest{Page: 3, Limit: 30, Sort: "job_uid", Order: "ASC"}, *req)
}

// GET - SUCCESS
func TestJobService_Get_OK(t *testing.T) {
	id := uuid.New().String()

	repo := &mockRepo{
		getFn: func(ctx context.Context, uid string) (*model.ExportJob, error) {
			return &model.ExportJob{UID: uuid.MustParse(uid)}, nil
		},
	}

	svc := JobService{repo: repo}

	job, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, job.UID.String())
}

// GET - FAIL
func TestJobService_Get_Errors(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		repoErr error
		wantErr error
	}{
		{name: "invalid id", id: "bad-id", wantErr: model.ErrIncorrectID},
		{name: "not found", id: uuid.New().String(), repoErr: model.ErrJobNotFound, wantErr: model.ErrJobNotFound},
		{name: "db error", id: uuid.New().String(), repoErr: errors.New("db down"), wantErr: model.ErrCommon500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{
				getFn: func(ctx context.Context, id string) (*model.ExportJob, error) {
					return nil, tt.repoErr
				},
			}

			_, err := JobService{repo: repo}.Get(context.Background(), tt.id)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// LOADRESULT - FAIL
func TestJobService_LoadResult_NotReady(t *testing.T) {
	repo := &mockRepo{
		getFn: func(ctx context.Context, id string) (*model.ExportJob, error) {
			return &model.ExportJob{Status: model.StatusCreated}, nil
		},
	}

	svc := JobService{repo: repo}

	_, _, err := svc.LoadResult(context.Background(), uuid.New().String())
	require.ErrorIs(t, err, model.ErrResultNotReady)
}

// LOADRESULT - SUCCESS
func TestJobService_LoadResult_OK(t *testing.T) {
	repo := &mockRepo{
		getFn: func(ctx context.Context, id string) (*model.ExportJob, error) {
			return &model.ExportJob{Status: model.StatusDone, ResultKey: "res/1/out.png"}, nil
		},
	}
	storage := &mockStorage{
		getFn: func(ctx context.Context, key string) (io.ReadCloser, string, error) {
			require.Equal(t, "res/1/out.png", key)
			return io.NopCloser(bytes.NewReader([]byte("png"))), model.PNG, nil
		},
	}

	rc, ct, err := JobService{repo: repo, storage: storage}.LoadResult(context.Background(), uuid.New().String())
	require.NoError(t, err)
	require.Equal(t, model.PNG, ct)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, []byte("png"), data)
}

// DELETE - FAIL - NOT FOUND
func TestJobService_Delete_NotFound(t *testing.T) {
	repo := &mockRepo{
		getFn: func(ctx context.Context, id string) (*model.ExportJob, error) {
			return nil, model.ErrJobNotFound
		},
	}

	svc := JobService{repo: repo}
	err := svc.Delete(context.Background(), uuid.New().String())
	require.ErrorIs(t, err, model.ErrJobNotFound)
}

// DELETE - SUCCESS: удаляются только существующие объекты
func TestJobService_Delete_OK(t *testing.T) {
	var deleted []string

	repo := &mockRepo{
		getFn: func(ctx context.Context, id string) (*model.ExportJob, error) {
			return &model.ExportJob{SourceKey: "src/1.jpg", ResultKey: "res/1/out.jpg"}, nil
		},
		deleteFn: func(ctx context.Context, id string) error { return nil },
	}
	storage := &mockStorage{
		deleteFn: func(ctx context.Context, key string) error {
			deleted = append(deleted, key)
			return nil
		},
	}

	err := JobService{repo: repo, storage: storage}.Delete(context.Background(), uuid.New().String())
	require.NoError(t, err)
	require.Equal(t, []string{"src/1.jpg", "res/1/out.jpg"}, deleted)
}

// UPDATESTATUS - SUCCESS
func TestJobService_UpdateStatus_OK(t *testing.T) {
	repo := &mockRepo{
		updateStatusFn: func(ctx context.Context, id string, st model.Status) error {
			require.Equal(t, model.StatusDone, st)
			return nil
		},
	}

	svc := JobService{repo: repo}
	err := svc.UpdateStatus(context.Background(), uuid.New().String(), model.StatusDone)
	require.NoError(t, err)
}

// SAVERESULT - SUCCESS
func TestJobService_SaveResult_OK(t *testing.T) {
	repo := &mockRepo{
		saveResultFn: func(ctx context.Context, job *model.ExportJob) error {
			require.NotNil(t, job.UpdatedAt)
			return nil
		},
	}

	svc := JobService{repo: repo}
	err := svc.SaveResult(context.Background(), &model.ExportJob{})
	require.NoError(t, err)
}

// REVIVEORPHANS - SUCCESS
func TestJobService_ReviveOrphans(t *testing.T) {
	called := 0

	repo := &mockRepo{
		fetchOrphansFn: func(ctx context.Context, limit int) ([]string, error) {
			return []string{"id1", "id2"}, nil
		},
	}

	pub := &mockPublisher{
		sendFn: func(ctx context.Context, s retry.Strategy, key []byte, v []byte) error {
			called++
			return nil
		},
	}

	svc := JobService{repo: repo, publisher: pub}
	svc.ReviveOrphans(context.Background(), 10)

	require.Equal(t, 2, called)
}

// хелпер для создания файла
func newFakeFile(content string) multipart.File {
	return &fakeMultipartFile{
		Reader: bytes.NewReader([]byte(content)),
	}
}

// хелпер для генерации корректного JobCreateData
func validCreateData() *model.JobCreateData {
	return &model.JobCreateData{
		Opacity:         50,
		Scale:           20,
		OrigImg:         newFakeFile("image-bytes"),
		OrigImgSize:     int64(len("image-bytes")),
		OrigContentType: model.JPEG,
		WMImg:           newFakeFile("wm-bytes"),
		WMImgSize:       int64(len("wm-bytes")),
		WMContentType:   model.PNG,
	}
}
