package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/harga-pangan/console/internal/apperr"
	"github.com/harga-pangan/console/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newTestClient(t *testing.T) (*Client, *testutil.FakeBackend) {
	fake := testutil.NewFakeBackend()
	t.Cleanup(fake.Close)
	return New(fake.URL()), fake
}

func loggedIn(t *testing.T, c *Client) {
	token, _, err := c.Login(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	c.SetTokenSource(staticToken(token))
}

func TestClient_Login(t *testing.T) {
	c, fake := newTestClient(t)

	t.Run("valid credentials", func(t *testing.T) {
		token, user, err := c.Login(context.Background(), "admin", "admin123")
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.Equal(t, "admin", user.Username)
		assert.True(t, user.IsAdmin)

		req, ok := fake.LastRequest("/api/auth/login")
		require.True(t, ok)
		assert.Empty(t, req.Authorization)
		assert.NotEmpty(t, req.RequestID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := c.Login(context.Background(), "admin", "nope")
		var apiErr *apperr.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Equal(t, "Username atau password salah", apiErr.Message)
		assert.Contains(t, apiErr.RawBody, "salah")
		assert.Equal(t, "/api/auth/login", apiErr.Endpoint)
	})
}

func TestClient_BearerOnlyWhenTokenPresent(t *testing.T) {
	c, fake := newTestClient(t)

	_, err := c.Datasets(context.Background())
	assert.True(t, apperr.IsAuth(err))
	req, _ := fake.LastRequest("/api/admin/datasets")
	assert.Empty(t, req.Authorization)

	c.SetTokenSource(staticToken(""))
	_, _ = c.Datasets(context.Background())
	req, _ = fake.LastRequest("/api/admin/datasets")
	assert.Empty(t, req.Authorization)

	loggedIn(t, c)
	_, err = c.Datasets(context.Background())
	require.NoError(t, err)
	req, _ = fake.LastRequest("/api/admin/datasets")
	assert.True(t, strings.HasPrefix(req.Authorization, "Bearer "))
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, WithTimeout(time.Second))
	_, err := c.TrainingStatus(context.Background())

	var netErr *apperr.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "/api/admin/training-status", netErr.Endpoint)
}

func TestClient_NoRetry(t *testing.T) {
	c, fake := newTestClient(t)
	loggedIn(t, c)

	fake.FailNext("/api/admin/training-status", http.StatusBadGateway)
	_, err := c.TrainingStatus(context.Background())

	var apiErr *apperr.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, 1, fake.Calls("/api/admin/training-status"))
}

func TestClient_StatusErrorIn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"error","message":"Gagal koneksi ke database"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.DataStatus(context.Background(), 70)

	var apiErr *apperr.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
	assert.Equal(t, "Gagal koneksi ke database", apiErr.Message)
}

func TestClient_UploadDataset(t *testing.T) {
	c, fake := newTestClient(t)
	loggedIn(t, c)

	csv := "Tanggal;Harga\n2024-01-01;35000\n2024-01-02;36000\n"
	result, err := c.UploadDataset(context.Background(), "Cabai Merah Keriting", "cabai.csv", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, "cabai_merah_keriting.csv", result.Filename)
	assert.Equal(t, "success", result.Status)

	req, ok := fake.LastRequest("/api/admin/upload-csv")
	require.True(t, ok)
	assert.Equal(t, "cabai_merah_keriting", req.Form["komoditas"])
	assert.Equal(t, "cabai.csv", req.Form["file"])
	assert.True(t, strings.HasPrefix(req.ContentType, "multipart/form-data; boundary="))
}

func TestClient_DeleteDataset(t *testing.T) {
	c, fake := newTestClient(t)
	loggedIn(t, c)
	fake.SeedDataset("Gula Pasir", 10)

	require.NoError(t, c.DeleteDataset(context.Background(), "Gula Pasir"))

	req, _ := fake.LastRequest("/api/admin/delete-dataset")
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "gula_pasir", req.Body["komoditas"])

	err := c.DeleteDataset(context.Background(), "Gula Pasir")
	var apiErr *apperr.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestClient_TrainAndStatus(t *testing.T) {
	c, fake := newTestClient(t)
	loggedIn(t, c)

	job, err := c.Train(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, job.IsRunning)
	req, _ := fake.LastRequest("/api/admin/train-model")
	assert.Nil(t, req.Body["komoditas"])

	_, err = c.Train(context.Background(), "Kedelai")
	assert.True(t, apperr.IsConflict(err))

	job, err = c.TrainingStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, job.Progress)

	job, err = c.TrainingStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "completed", string(job.Status))
	assert.False(t, job.IsRunning)
}

func TestClient_Preprocess(t *testing.T) {
	c, fake := newTestClient(t)
	loggedIn(t, c)
	fake.SeedDataset("Kedelai", 20)
	fake.SeedDataset("Daging Sapi", 20)
	fake.FailPreprocessItem("Daging Sapi")

	msg, results, err := c.Preprocess(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msg, "1 berhasil, 1 gagal")
	require.Len(t, results, 2)

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
			assert.Equal(t, "daging_sapi", r.Komoditas)
		} else {
			assert.NotEmpty(t, r.PreviewData)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestClient_PredictWithFilter(t *testing.T) {
	c, fake := newTestClient(t)
	loggedIn(t, c)

	preds, hist, err := c.PredictWithFilter(context.Background(), "Beras Medium", 7)
	require.NoError(t, err)
	assert.Len(t, preds, 7)
	assert.Len(t, hist, 2)

	req, _ := fake.LastRequest("/api/predict-with-filter")
	assert.Equal(t, "beras_medium", req.Body["komoditas"])
	assert.Equal(t, float64(7), req.Body["filter_days"])
}

func TestClient_Plots(t *testing.T) {
	c, _ := newTestClient(t)
	loggedIn(t, c)

	at := time.UnixMilli(1715300000000)
	p := PlotImagePath("Bawang Merah", PlotTrainingHistory, at)
	assert.Equal(t, "/api/admin/plot-image/bawang_merah?t=1715300000000&type=training_history", p)

	data, contentType, err := c.PlotImage(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, testutil.PNG, data)
	assert.Equal(t, "image/png", contentType)

	assert.Equal(t, "/api/admin/prediction-plot/bawang_merah?t=1715300000000", PredictionPlotPath("bawang merah", at))

	plots, err := c.PlotImages(context.Background())
	require.NoError(t, err)
	assert.Len(t, plots, 11)
}

func TestClient_ScrapingEndpoints(t *testing.T) {
	c, fake := newTestClient(t)

	status, err := c.DataStatus(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, status.Days, 5)
	assert.Equal(t, 11, status.TotalRequired)

	fake.SetMappingStatus("error")
	mapping, err := c.CheckMapping(context.Background())
	require.NoError(t, err)
	assert.False(t, mapping.OK())
	assert.Equal(t, []string{"Kedelai"}, mapping.MissingKomoditas)

	names, _, err := c.Komoditas(context.Background())
	require.NoError(t, err)
	assert.Len(t, names, 11)

	result, err := c.Scrape(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 22, result.DataSaved)
}

func TestClient_ContextCancel(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.Komoditas(ctx)
	var netErr *apperr.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, errors.Is(err, context.Canceled))
}
