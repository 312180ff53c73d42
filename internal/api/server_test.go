package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/harga-pangan/console/internal/apiclient"
	"github.com/harga-pangan/console/internal/dataset"
	"github.com/harga-pangan/console/internal/models"
	"github.com/harga-pangan/console/internal/session"
	"github.com/harga-pangan/console/internal/storage"
	"github.com/harga-pangan/console/internal/testutil"
	"github.com/harga-pangan/console/internal/workflow"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type testServer struct {
	e        *echo.Echo
	fake     *testutil.FakeBackend
	session  *session.Manager
	workflow   *workflow.Controller
	store      *storage.LocalStore
	stagingDir string
}

func newTestServer(t *testing.T) *testServer {
	fake := testutil.NewFakeBackend()
	t.Cleanup(fake.Close)

	client := apiclient.New(fake.URL())
	sess := session.NewManager(storage.NewMemoryKV(), client)
	client.SetTokenSource(sess)

	cfg := workflow.DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.AutoPreprocess = false
	wf := workflow.NewController(client, sess, cfg)
	t.Cleanup(wf.Close)

	stagingDir := t.TempDir()
	store, err := storage.NewLocalStore(stagingDir)
	require.NoError(t, err)

	inspector, err := dataset.NewInspector()
	require.NoError(t, err)
	t.Cleanup(func() { inspector.Close() })

	e := echo.New()
	SetupMiddleware(e)
	RegisterRoutes(e, NewHandlers(&Dependencies{
		Session:    sess,
		Workflow:   wf,
		Backend:    client,
		Store:      store,
		Inspector:  inspector,
		BackendURL: fake.URL(),
		Version:    "test",
	}))

	return &testServer{e: e, fake: fake, session: sess, workflow: wf, store: store, stagingDir: stagingDir}
}

func (s *testServer) assertStagingEmpty(t *testing.T) {
	entries, err := os.ReadDir(s.stagingDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func (s *testServer) login(t *testing.T, username, password string) {
	_, err := s.session.Login(context.Background(), username, password)
	require.NoError(t, err)
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return s.do(req)
}

func uploadRequest(t *testing.T, name, fileName, content string) *http.Request {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("komoditas", name))
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	part.Write([]byte(content))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/workflow/datasets", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"authenticated":false`)
	assert.NotEmpty(t, rec.Header().Get(apiclient.HeaderRequestID))
}

func TestRouteGuard(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/workflow", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("X-Redirect"))

	s.login(t, "user", "user123")

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/workflow", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("X-Redirect"))
	assert.Equal(t, "FORBIDDEN", decodeError(t, rec).Code)

	rec = s.doJSON(http.MethodPost, "/api/predict", map[string]interface{}{"komoditas": "Kedelai", "filterDays": 3})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.doJSON(http.MethodPost, "/api/session/login", loginRequest{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, rec).Code)

	rec = s.doJSON(http.MethodPost, "/api/session/login", loginRequest{Username: "admin", Password: "admin123"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redirect":"/admin"`)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/session", nil))
	var info models.SessionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.True(t, info.Authenticated)
	assert.Equal(t, "admin", info.User.Username)

	rec = s.doJSON(http.MethodPost, "/api/session/logout", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, s.session.IsAuthenticated())

	rec = s.doJSON(http.MethodPost, "/api/session/register", registerRequest{
		Username: "budi", Password: "rahasia1", ConfirmPassword: "rahasia2",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)

	rec = s.doJSON(http.MethodPost, "/api/session/register", registerRequest{
		Username: "budi", Password: "rahasia1", ConfirmPassword: "rahasia1",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redirect":"/login"`)
}

func TestUploadDataset(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "admin", "admin123")

	rec := s.do(uploadRequest(t, "Kedelai", "kedelai.csv", "Tanggal;Harga\n2024-01-01;35000\n2024-01-02;36000\n2024-01-03;35500\n"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Slot    models.DatasetSlot    `json:"slot"`
		Preview models.DatasetPreview `json:"preview"`
		File    models.FileInfo       `json:"file"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Slot.Uploaded)
	assert.Equal(t, 3, resp.Slot.RowCount)
	assert.Equal(t, 3, resp.Preview.RowCount)
	assert.Equal(t, []string{"Tanggal", "Harga"}, resp.Preview.Columns)

	assert.Equal(t, StagedForwarded, resp.File.Status)
	_, err := s.store.Get(resp.File.ID)
	assert.Error(t, err, "staged file is discarded once forwarded")
	s.assertStagingEmpty(t)

	req, ok := s.fake.LastRequest("/api/admin/upload-csv")
	require.True(t, ok)
	assert.Equal(t, "kedelai", req.Form["komoditas"])

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/workflow/staged", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestUploadDataset_BackendFailureDiscardsStagedFile(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "admin", "admin123")
	s.fake.FailNext("/api/admin/upload-csv", http.StatusInternalServerError)

	rec := s.do(uploadRequest(t, "Kedelai", "kedelai.csv", "Tanggal;Harga\n2024-01-01;35000\n2024-01-02;36000\n"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	s.assertStagingEmpty(t)
}

func TestUploadDataset_Rejected(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "admin", "admin123")

	tests := []struct {
		name      string
		komoditas string
		fileName  string
		content   string
	}{
		{"unknown commodity", "Jagung", "jagung.csv", "Tanggal;Harga\n2024-01-01;1\n"},
		{"not csv", "Kedelai", "kedelai.xlsx", "x"},
		{"header only", "Kedelai", "kedelai.csv", "Tanggal;Harga\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(uploadRequest(t, tt.komoditas, tt.fileName, tt.content))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
		})
	}

	assert.Zero(t, s.fake.Calls("/api/admin/upload-csv"))
	files, err := s.store.List(0)
	require.NoError(t, err)
	assert.Empty(t, files)
	s.assertStagingEmpty(t)
}

func TestWorkflowSteps(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "admin", "admin123")

	rec := s.doJSON(http.MethodPost, "/api/workflow/train", trainRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "preprocessing", decodeError(t, rec).Details)

	rec = s.doJSON(http.MethodPost, "/api/workflow/preprocess", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.fake.SeedDataset("Kedelai", 10)
	rec = s.doJSON(http.MethodPost, "/api/workflow/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap workflow.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Len(t, snap.Options, 10)

	rec = s.doJSON(http.MethodDelete, "/api/workflow/datasets/kedelai", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Len(t, snap.Options, 11)

	rec = s.doJSON(http.MethodDelete, "/api/workflow/datasets/kedelai", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/workflow/journal", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"dataset_removed"`)
}

func TestPredict(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "admin", "admin123")

	rec := s.doJSON(http.MethodPost, "/api/predict", predictRequest{Komoditas: "Gula Pasir", FilterDays: 7})
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.PredictionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Len(t, result.Predictions, 7)
	assert.Equal(t, 600.0, result.Stats.Trend)

	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(predictRequest{Komoditas: "Gula Pasir", FilterDays: 3})
	req := httptest.NewRequest(http.MethodPost, "/api/predict", &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAccept, MIMEApplicationMsgpack)
	rec = s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MIMEApplicationMsgpack, rec.Header().Get(echo.HeaderContentType))

	var packed models.PredictionResult
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &packed))
	assert.Len(t, packed.Predictions, 3)
	assert.Equal(t, "Gula Pasir", packed.Komoditas)

	rec = s.doJSON(http.MethodPost, "/api/predict", predictRequest{Komoditas: "Gula Pasir", FilterDays: 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/predict/future/kedelai", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHistoryAndPlots(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "admin", "admin123")

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []models.TrainingHistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 11)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/history/beras_medium/plots", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/admin/prediction-plot/beras_medium?t=")

	for _, kind := range []string{"", "training_history", "prediction"} {
		rec = s.do(httptest.NewRequest(http.MethodGet, "/api/plots/beras_medium?type="+kind, nil))
		require.Equal(t, http.StatusOK, rec.Code, kind)
		assert.Equal(t, testutil.PNG, rec.Body.Bytes())
		assert.Equal(t, "no-store", rec.Header().Get(echo.HeaderCacheControl))
	}

	req, _ := s.fake.LastRequest("/api/admin/prediction-plot/beras_medium")
	assert.NotEmpty(t, req.RequestID)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/plots/beras_medium?type=pie", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/plots/jagung", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDReachesBackend(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "admin", "admin123")

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set(apiclient.HeaderRequestID, "trace-1234")
	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "trace-1234", rec.Header().Get(apiclient.HeaderRequestID))
	backendReq, _ := s.fake.LastRequest("/api/admin/training-history")
	assert.Equal(t, "trace-1234", backendReq.RequestID)
}

func TestScraping(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "admin", "admin123")
	s.fake.SetMappingStatus("error")

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/scraping?days=14", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"class":"empty"`)
	assert.Contains(t, rec.Body.String(), `"class":"complete"`)

	rec = s.doJSON(http.MethodPost, "/api/scraping/run", scrapeRequest{DaysBack: 7})
	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)
	assert.Equal(t, "CONFIRMATION_REQUIRED", decodeError(t, rec).Code)
	assert.Zero(t, s.fake.Calls("/api/scrape"))

	rec = s.doJSON(http.MethodPost, "/api/scraping/run", scrapeRequest{DaysBack: 7, Confirm: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data_saved":77`)

	rec = s.doJSON(http.MethodPost, "/api/scraping/run", scrapeRequest{DaysBack: 400, Confirm: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/scraping?days=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBackendUnavailable(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "admin", "admin123")
	s.fake.Close()

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(decodeError(t, rec).Message, "Tidak dapat terhubung"))
}
