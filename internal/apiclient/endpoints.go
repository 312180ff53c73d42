package apiclient

import (
	"context"
	"io"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/harga-pangan/console/internal/apperr"
	"github.com/harga-pangan/console/internal/komoditas"
	"github.com/harga-pangan/console/internal/models"
)

// Plot kinds accepted by the plot-image endpoint.
const (
	PlotPredictions     = "predictions"
	PlotTrainingHistory = "training_history"
)

type loginResponse struct {
	Envelope
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login exchanges credentials for a bearer token and the user record.
func (c *Client) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	var resp loginResponse
	err := c.PostJSON(ctx, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return "", nil, err
	}
	if resp.Token == "" || resp.User == nil {
		return "", nil, apperr.NewAuthError("login response carried no token", nil)
	}
	return resp.Token, resp.User, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, password string, isAdmin bool) (string, error) {
	var resp Envelope
	err := c.PostJSON(ctx, "/api/auth/register", map[string]any{
		"username": username,
		"password": password,
		"is_admin": isAdmin,
	}, &resp)
	return resp.Message, err
}

type meResponse struct {
	Envelope
	User *models.User `json:"user"`
}

// Me returns the user the current token belongs to.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var resp meResponse
	if err := c.Get(ctx, "/api/auth/me", nil, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

type datasetsResponse struct {
	Envelope
	Datasets []models.DatasetRecord `json:"datasets"`
}

// Datasets lists the datasets stored on the backend.
func (c *Client) Datasets(ctx context.Context) ([]models.DatasetRecord, error) {
	var resp datasetsResponse
	if err := c.Get(ctx, "/api/admin/datasets", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Datasets, nil
}

type uploadResponse struct {
	Envelope
	Timestamp string `json:"timestamp"`
	Rows      int    `json:"rows"`
	Filename  string `json:"filename"`
}

// UploadDataset sends one commodity's CSV. The commodity is normalized
// before it goes on the wire.
func (c *Client) UploadDataset(ctx context.Context, name, fileName string, content io.Reader) (*models.UploadResult, error) {
	var resp uploadResponse
	err := c.PostMultipart(ctx, "/api/admin/upload-csv",
		map[string]string{"komoditas": komoditas.Normalize(name)},
		FilePart{Field: "file", FileName: fileName, Content: content},
		&resp)
	if err != nil {
		return nil, err
	}
	return &models.UploadResult{
		Status:    resp.Status,
		Message:   resp.Message,
		Timestamp: resp.Timestamp,
		Rows:      resp.Rows,
		Filename:  resp.Filename,
	}, nil
}

// DeleteDataset removes one commodity's dataset.
func (c *Client) DeleteDataset(ctx context.Context, name string) error {
	var resp Envelope
	return c.Delete(ctx, "/api/admin/delete-dataset", map[string]string{
		"komoditas": komoditas.Normalize(name),
	}, &resp)
}

type preprocessResponse struct {
	Envelope
	Results []models.PreprocessResult `json:"results"`
}

// Preprocess runs preprocessing over every uploaded dataset.
func (c *Client) Preprocess(ctx context.Context) (string, []models.PreprocessResult, error) {
	var resp preprocessResponse
	if err := c.PostJSON(ctx, "/api/admin/preprocess-data", struct{}{}, &resp); err != nil {
		return "", nil, err
	}
	return resp.Message, resp.Results, nil
}

type trainingResponse struct {
	Envelope
	TrainingStatus *models.TrainingJob `json:"training_status"`
}

// Train starts a training job, for one commodity or for all of them when
// name is empty.
func (c *Client) Train(ctx context.Context, name string) (*models.TrainingJob, error) {
	body := map[string]any{"komoditas": nil}
	if name != "" {
		body["komoditas"] = komoditas.Normalize(name)
	}

	var resp trainingResponse
	if err := c.PostJSON(ctx, "/api/admin/train-model", body, &resp); err != nil {
		return nil, err
	}
	job := models.TrainingJob{IsRunning: true, Status: models.TrainingRunning, Message: resp.Message}
	if resp.TrainingStatus != nil {
		job = *resp.TrainingStatus
	}
	job = job.Normalize()
	return &job, nil
}

// TrainingStatus polls the current training job.
func (c *Client) TrainingStatus(ctx context.Context) (*models.TrainingJob, error) {
	var resp trainingResponse
	if err := c.Get(ctx, "/api/admin/training-status", nil, &resp); err != nil {
		return nil, err
	}
	if resp.TrainingStatus == nil {
		return &models.TrainingJob{Status: models.TrainingIdle}, nil
	}
	job := resp.TrainingStatus.Normalize()
	return &job, nil
}

type historyResponse struct {
	Envelope
	History []models.TrainingHistoryEntry `json:"history"`
}

// TrainingHistory lists each model's training schedule.
func (c *Client) TrainingHistory(ctx context.Context) ([]models.TrainingHistoryEntry, error) {
	var resp historyResponse
	if err := c.Get(ctx, "/api/admin/training-history", nil, &resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}

// PlotImagePath returns the cache-busted path of a chart for kind
// (PlotPredictions or PlotTrainingHistory).
func PlotImagePath(name, kind string, at time.Time) string {
	q := url.Values{}
	q.Set("type", kind)
	q.Set("t", strconv.FormatInt(at.UnixMilli(), 10))
	return path.Join("/api/admin/plot-image", komoditas.Normalize(name)) + "?" + q.Encode()
}

// PredictionPlotPath returns the cache-busted path of the prediction chart.
func PredictionPlotPath(name string, at time.Time) string {
	q := url.Values{}
	q.Set("t", strconv.FormatInt(at.UnixMilli(), 10))
	return path.Join("/api/admin/prediction-plot", komoditas.Normalize(name)) + "?" + q.Encode()
}

// PlotImage fetches a chart by the path built with PlotImagePath or
// PredictionPlotPath.
func (c *Client) PlotImage(ctx context.Context, plotPath string) ([]byte, string, error) {
	u, err := url.Parse(plotPath)
	if err != nil {
		return nil, "", apperr.NewValidationError("url", "invalid plot url")
	}
	return c.GetBytes(ctx, u.Path, u.Query())
}

type plotsResponse struct {
	Envelope
	Plots map[string]models.PlotInfo `json:"plots"`
}

// PlotImages returns chart URLs for every commodity that has them.
func (c *Client) PlotImages(ctx context.Context) (map[string]models.PlotInfo, error) {
	var resp plotsResponse
	if err := c.Get(ctx, "/api/admin/plot-images", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Plots, nil
}

type predictionResponse struct {
	Envelope
	Predictions    []models.PredictionPoint `json:"predictions"`
	HistoricalData []models.HistoricalPoint `json:"historical_data"`
}

// PredictFuture returns the 30-day forecast for one commodity.
func (c *Client) PredictFuture(ctx context.Context, name string) ([]models.PredictionPoint, error) {
	var resp predictionResponse
	p := path.Join("/api/admin/predict-future", komoditas.Normalize(name))
	if err := c.Get(ctx, p, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Predictions, nil
}

// PredictWithFilter returns a forecast over filterDays days plus the
// historical series it was built from.
func (c *Client) PredictWithFilter(ctx context.Context, name string, filterDays int) ([]models.PredictionPoint, []models.HistoricalPoint, error) {
	var resp predictionResponse
	err := c.PostJSON(ctx, "/api/predict-with-filter", map[string]any{
		"komoditas":   komoditas.Normalize(name),
		"filter_days": filterDays,
	}, &resp)
	if err != nil {
		return nil, nil, err
	}
	return resp.Predictions, resp.HistoricalData, nil
}

type dataStatusResponse struct {
	Envelope
	Data                     []models.DataStatusDay `json:"data"`
	TotalKomoditasDiperlukan int                    `json:"total_komoditas_diperlukan"`
}

// DataStatus reports per-day scraping coverage over the last days days.
func (c *Client) DataStatus(ctx context.Context, days int) (*models.DataStatus, error) {
	q := url.Values{}
	q.Set("days", strconv.Itoa(days))

	var resp dataStatusResponse
	if err := c.Get(ctx, "/api/data-status", q, &resp); err != nil {
		return nil, err
	}
	return &models.DataStatus{Days: resp.Data, TotalRequired: resp.TotalKomoditasDiperlukan}, nil
}

// CheckMapping reports scraping source mapping integrity. A status of
// "error" here is a result, not a failure, so the envelope is not checked.
func (c *Client) CheckMapping(ctx context.Context) (*models.MappingStatus, error) {
	var resp models.MappingStatus
	if err := c.Get(ctx, "/api/check-mapping", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type komoditasResponse struct {
	Envelope
	Komoditas []string          `json:"komoditas"`
	Mapping   map[string]string `json:"mapping"`
}

// Komoditas lists the commodities the scraper collects.
func (c *Client) Komoditas(ctx context.Context) ([]string, map[string]string, error) {
	var resp komoditasResponse
	if err := c.Get(ctx, "/api/komoditas", nil, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Komoditas, resp.Mapping, nil
}

type scrapeResponse struct {
	Envelope
	DataSaved   int      `json:"data_saved"`
	FailedDates []string `json:"failed_dates"`
}

// Scrape collects prices for the last daysBack days.
func (c *Client) Scrape(ctx context.Context, daysBack int) (*models.ScrapeResult, error) {
	var resp scrapeResponse
	if err := c.PostJSON(ctx, "/api/scrape", map[string]int{"days_back": daysBack}, &resp); err != nil {
		return nil, err
	}
	return &models.ScrapeResult{
		Status:      resp.Status,
		Message:     resp.Message,
		DataSaved:   resp.DataSaved,
		FailedDates: resp.FailedDates,
	}, nil
}
