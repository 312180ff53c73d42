// fake_backend.go - In-process forecasting backend for tests
package testutil

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/harga-pangan/console/internal/komoditas"
)

// FakeSecret signs every token the fake backend issues.
var FakeSecret = []byte("test-secret")

// PNG is a 1x1 image returned by the plot endpoints.
var PNG = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

type fakeUser struct {
	id       int
	password string
	isAdmin  bool
}

type fakeDataset struct {
	filename  string
	rows      int
	timestamp string
}

type fakeTraining struct {
	IsTraining bool    `json:"is_training"`
	Komoditas  *string `json:"komoditas"`
	StartTime  *string `json:"start_time"`
	EndTime    *string `json:"end_time"`
	Progress   int     `json:"progress"`
	Status     string  `json:"status"`
	Message    string  `json:"message"`
}

// Recorded is what the fake saw on one request.
type Recorded struct {
	Method        string
	Path          string
	Authorization string
	ContentType   string
	RequestID     string
	Body          map[string]any
	Form          map[string]string
}

// FakeBackend implements the forecasting backend's HTTP contract closely
// enough to drive the console end to end.
type FakeBackend struct {
	Server *httptest.Server

	// Tunables; change them through the setters once requests are flowing.
	TokenTTL        time.Duration
	ProgressStep    int    // progress added per status poll
	FailTrainingAt  int    // fail once progress reaches this value (0 = never)
	MappingStatus   string // "ok" or "error"
	FailPreprocess  bool
	PreprocessFails map[string]bool // per commodity item failures
	StatusDays      int             // commodities with data per day, for data-status

	mu       sync.Mutex
	users    map[string]fakeUser
	datasets map[string]fakeDataset
	training fakeTraining
	failNext map[string]int
	calls    map[string]int
	requests []Recorded
}

// NewFakeBackend starts a fake backend with one admin ("admin"/"admin123")
// and one plain user ("user"/"user123").
func NewFakeBackend() *FakeBackend {
	f := &FakeBackend{
		TokenTTL:      time.Hour,
		ProgressStep:  50,
		MappingStatus: "ok",
		StatusDays:    len(komoditas.All),
		users: map[string]fakeUser{
			"admin": {id: 1, password: "admin123", isAdmin: true},
			"user":  {id: 2, password: "user123"},
		},
		datasets:        make(map[string]fakeDataset),
		training:        fakeTraining{Status: "idle"},
		failNext:        make(map[string]int),
		calls:           make(map[string]int),
		PreprocessFails: make(map[string]bool),
	}
	f.Server = httptest.NewServer(f.routes())
	return f
}

// URL is the base URL of the fake.
func (f *FakeBackend) URL() string { return f.Server.URL }

// Close shuts the fake down.
func (f *FakeBackend) Close() { f.Server.Close() }

// FailNext makes the next request to path answer with status.
func (f *FakeBackend) FailNext(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[path] = status
}

// Calls returns how many requests reached path.
func (f *FakeBackend) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// Requests returns everything recorded so far.
func (f *FakeBackend) Requests() []Recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Recorded, len(f.requests))
	copy(out, f.requests)
	return out
}

// LastRequest returns the last request recorded for path.
func (f *FakeBackend) LastRequest(path string) (Recorded, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Path == path {
			return f.requests[i], true
		}
	}
	return Recorded{}, false
}

// SeedDataset marks a dataset as already stored on the backend.
func (f *FakeBackend) SeedDataset(name string, rows int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := komoditas.Normalize(name)
	f.datasets[key] = fakeDataset{filename: key + ".csv", rows: rows, timestamp: time.Now().Format("2006-01-02 15:04:05")}
}

// SetMappingStatus sets what check-mapping reports ("ok" or "error").
func (f *FakeBackend) SetMappingStatus(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MappingStatus = status
}

// SetPreprocessFailure makes the whole preprocess request fail.
func (f *FakeBackend) SetPreprocessFailure(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailPreprocess = fail
}

// FailPreprocessItem flags one commodity as failed in preprocess results.
func (f *FakeBackend) FailPreprocessItem(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PreprocessFails[komoditas.Normalize(name)] = true
}

// SetTrainingProgress controls how training advances per status poll.
func (f *FakeBackend) SetTrainingProgress(step, failAt int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ProgressStep = step
	f.FailTrainingAt = failAt
}

// SetTokenTTL changes the lifetime of tokens issued from now on.
func (f *FakeBackend) SetTokenTTL(ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TokenTTL = ttl
}

// SetTraining replaces the current training state.
func (f *FakeBackend) SetTraining(running bool, status string, progress int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.training.IsTraining = running
	f.training.Status = status
	f.training.Progress = progress
}

// IssueToken signs a token for userID that expires at exp.
func IssueToken(userID int, exp time.Time) string {
	claims := jwt.MapClaims{
		"sub": strconv.Itoa(userID),
		"iat": time.Now().Unix(),
		"exp": exp.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(FakeSecret)
	if err != nil {
		panic(err)
	}
	return token
}

func (f *FakeBackend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(f.record)

	r.Post("/api/auth/login", f.handleLogin)
	r.Post("/api/auth/register", f.handleRegister)
	r.Get("/api/komoditas", f.handleKomoditas)
	r.Get("/api/check-mapping", f.handleCheckMapping)
	r.Get("/api/data-status", f.handleDataStatus)
	r.Post("/api/scrape", f.handleScrape)

	r.Group(func(r chi.Router) {
		r.Use(f.requireAuth)

		r.Get("/api/auth/me", f.handleMe)
		r.Post("/api/predict-with-filter", f.handlePredictWithFilter)

		r.Route("/api/admin", func(r chi.Router) {
			r.Get("/datasets", f.handleDatasets)
			r.Post("/upload-csv", f.handleUpload)
			r.Delete("/delete-dataset", f.handleDeleteDataset)
			r.Post("/preprocess-data", f.handlePreprocess)
			r.Post("/train-model", f.handleTrain)
			r.Get("/training-status", f.handleTrainingStatus)
			r.Get("/training-history", f.handleTrainingHistory)
			r.Get("/plot-image/{komoditas}", f.handlePlot)
			r.Get("/prediction-plot/{komoditas}", f.handlePlot)
			r.Get("/plot-images", f.handlePlotImages)
			r.Get("/predict-future/{komoditas}", f.handlePredictFuture)
		})
	})

	return r
}

func (f *FakeBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := Recorded{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			ContentType:   r.Header.Get("Content-Type"),
			RequestID:     r.Header.Get("X-Request-ID"),
		}

		if strings.HasPrefix(rec.ContentType, "multipart/form-data") {
			if err := r.ParseMultipartForm(10 << 20); err == nil {
				rec.Form = make(map[string]string)
				for k, v := range r.MultipartForm.Value {
					rec.Form[k] = v[0]
				}
				for k, files := range r.MultipartForm.File {
					rec.Form[k] = files[0].Filename
				}
			}
		} else if strings.HasPrefix(rec.ContentType, "application/json") {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				rec.Body = body
			}
		}

		f.mu.Lock()
		f.calls[r.URL.Path]++
		f.requests = append(f.requests, rec)
		status, fail := f.failNext[r.URL.Path]
		delete(f.failNext, r.URL.Path)
		f.mu.Unlock()

		if fail {
			writeJSON(w, status, map[string]any{"status": "error", "message": fmt.Sprintf("injected failure %d", status)})
			return
		}

		// Body was consumed above; handlers read from the recording.
		next.ServeHTTP(w, r.WithContext(withRecorded(r.Context(), rec)))
	})
}

func (f *FakeBackend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Missing Authorization Header"})
			return
		}

		_, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (any, error) {
			return FakeSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Token has expired"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	body := recordedFrom(r).Body
	username, _ := body["username"].(string)
	password, _ := body["password"].(string)
	if username == "" || password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Username dan password diperlukan"})
		return
	}

	f.mu.Lock()
	u, ok := f.users[username]
	ttl := f.TokenTTL
	f.mu.Unlock()

	if !ok || u.password != password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "message": "Username atau password salah"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"token":  IssueToken(u.id, time.Now().Add(ttl)),
		"user":   map[string]any{"id": u.id, "username": username, "is_admin": u.isAdmin},
	})
}

func (f *FakeBackend) handleRegister(w http.ResponseWriter, r *http.Request) {
	body := recordedFrom(r).Body
	username, _ := body["username"].(string)
	password, _ := body["password"].(string)
	isAdmin, _ := body["is_admin"].(bool)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.users[username]; exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Username sudah digunakan"})
		return
	}
	f.users[username] = fakeUser{id: len(f.users) + 1, password: password, isAdmin: isAdmin}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "User berhasil dibuat"})
}

func (f *FakeBackend) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"user":   map[string]any{"id": 1, "username": "admin", "is_admin": true},
	})
}

func (f *FakeBackend) handleDatasets(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	list := make([]map[string]any, 0, len(f.datasets))
	for _, key := range komoditas.Keys() {
		ds, ok := f.datasets[key]
		if !ok {
			continue
		}
		list = append(list, map[string]any{
			"komoditas": key,
			"filename":  ds.filename,
			"rows":      ds.rows,
			"timestamp": ds.timestamp,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "datasets": list})
}

func (f *FakeBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	key := r.FormValue("komoditas")
	file, header, err := r.FormFile("file")
	if err != nil || key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Parameter 'komoditas' dibutuhkan"})
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Tipe file tidak diperbolehkan. Gunakan .csv"})
		return
	}

	rows := -1 // header line
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			rows++
		}
	}
	if rows < 0 {
		rows = 0
	}

	ts := time.Now().Format("2006-01-02 15:04:05")
	f.mu.Lock()
	f.datasets[key] = fakeDataset{filename: key + ".csv", rows: rows, timestamp: ts}
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   "File berhasil diunggah",
		"timestamp": ts,
		"rows":      rows,
		"filename":  key + ".csv",
	})
}

func (f *FakeBackend) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	key, _ := recordedFrom(r).Body["komoditas"].(string)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.datasets[key]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": fmt.Sprintf("Dataset untuk %s tidak ditemukan", key)})
		return
	}
	delete(f.datasets, key)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Dataset dihapus"})
}

func (f *FakeBackend) handlePreprocess(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailPreprocess {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "Error: preprocessing gagal"})
		return
	}

	results := make([]map[string]any, 0, len(f.datasets))
	ok, failed := 0, 0
	for _, key := range komoditas.Keys() {
		ds, exists := f.datasets[key]
		if !exists {
			continue
		}
		if f.PreprocessFails[key] {
			failed++
			results = append(results, map[string]any{
				"komoditas": key, "file": ds.filename, "status": "failed", "error": "kolom Harga tidak ditemukan",
			})
			continue
		}
		ok++
		results = append(results, map[string]any{
			"komoditas":       key,
			"file":            ds.filename,
			"rows":            ds.rows,
			"processing_time": 0.12,
			"status":          "success",
			"preview_data": []map[string]any{
				{"Tanggal": "2024-01-01", "Harga": 35000.0, "Harga_Normalized": 0.5},
			},
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Preprocessing selesai: %d berhasil, %d gagal", ok, failed),
		"results": results,
	})
}

func (f *FakeBackend) handleTrain(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.training.IsTraining {
		writeJSON(w, http.StatusConflict, map[string]any{
			"status":          "error",
			"message":         "Training sedang berjalan",
			"training_status": f.training,
		})
		return
	}

	var target *string
	if k, ok := recordedFrom(r).Body["komoditas"].(string); ok {
		target = &k
	}
	start := time.Now().Format(time.RFC3339)
	f.training = fakeTraining{
		IsTraining: true,
		Komoditas:  target,
		StartTime:  &start,
		Progress:   0,
		Status:     "running",
		Message:    "Training dimulai",
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"message":         "Training dimulai",
		"training_status": f.training,
	})
}

func (f *FakeBackend) handleTrainingStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.training.IsTraining {
		f.training.Progress += f.ProgressStep
		switch {
		case f.FailTrainingAt > 0 && f.training.Progress >= f.FailTrainingAt:
			f.finishTraining("failed", "Training gagal: data tidak cukup")
		case f.training.Progress >= 100:
			f.training.Progress = 100
			f.finishTraining("completed", "Training selesai")
		default:
			f.training.Message = fmt.Sprintf("Training %d%%", f.training.Progress)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "training_status": f.training})
}

func (f *FakeBackend) finishTraining(status, message string) {
	end := time.Now().Format(time.RFC3339)
	f.training.IsTraining = false
	f.training.Status = status
	f.training.Message = message
	f.training.EndTime = &end
}

func (f *FakeBackend) handleTrainingHistory(w http.ResponseWriter, r *http.Request) {
	history := make([]map[string]any, 0, len(komoditas.All))
	for i, key := range komoditas.Keys() {
		history = append(history, map[string]any{
			"komoditas":                key,
			"training_date":            "2024-05-01",
			"next_training_date":       "2024-05-31",
			"days_until_next_training": 30 - i,
			"model_exists":             i%2 == 0,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "history": history})
}

func (f *FakeBackend) handlePlot(w http.ResponseWriter, r *http.Request) {
	if !komoditas.Valid(chi.URLParam(r, "komoditas")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "Plot tidak ditemukan"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(PNG)
}

func (f *FakeBackend) handlePlotImages(w http.ResponseWriter, r *http.Request) {
	plots := make(map[string]any, len(komoditas.All))
	for _, name := range komoditas.All {
		key := komoditas.Normalize(name)
		plots[name] = map[string]string{
			"prediction_plot": key + "_predictions.png",
			"training_plot":   key + "_training_history.png",
			"prediction_url":  "/api/admin/plot-image/" + key + "?type=predictions",
			"training_url":    "/api/admin/plot-image/" + key + "?type=training_history",
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "plots": plots})
}

func (f *FakeBackend) handlePredictFuture(w http.ResponseWriter, r *http.Request) {
	if !komoditas.Valid(chi.URLParam(r, "komoditas")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "Model tidak tersedia"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "predictions": predictions(30)})
}

func (f *FakeBackend) handlePredictWithFilter(w http.ResponseWriter, r *http.Request) {
	body := recordedFrom(r).Body
	key, _ := body["komoditas"].(string)
	days, _ := body["filter_days"].(float64)

	if key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Parameter 'komoditas' dibutuhkan."})
		return
	}
	if days != 3 && days != 7 && days != 30 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Filter hari harus 3, 7, atau 30."})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "success",
		"predictions": predictions(int(days)),
		"historical_data": []map[string]any{
			{"tanggal": "2024-05-10", "harga": 40000.0},
			{"tanggal": "2024-05-09", "harga": 39000.0},
		},
	})
}

func predictions(n int) []map[string]any {
	out := make([]map[string]any, n)
	start := time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = map[string]any{
			"tanggal":  start.AddDate(0, 0, i).Format("2006-01-02"),
			"prediksi": 40000.0 + float64(i*100),
		}
	}
	return out
}

func (f *FakeBackend) handleDataStatus(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days <= 0 {
		days = 70
	}

	f.mu.Lock()
	perDay := f.StatusDays
	f.mu.Unlock()

	data := make([]map[string]any, days)
	today := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	for i := range data {
		count := perDay
		if i == 0 {
			count = 0
		}
		data[i] = map[string]any{
			"tanggal":     today.AddDate(0, 0, -i).Format("2006-01-02"),
			"jumlah_data": count,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                     "success",
		"data":                       data,
		"total_komoditas_diperlukan": len(komoditas.All),
	})
}

func (f *FakeBackend) handleCheckMapping(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	status := f.MappingStatus
	f.mu.Unlock()

	resp := map[string]any{"status": status, "missing_komoditas": []string{}, "invalid_mappings": []string{}}
	if status != "ok" {
		resp["missing_komoditas"] = []string{"Kedelai"}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *FakeBackend) handleKomoditas(w http.ResponseWriter, r *http.Request) {
	mapping := make(map[string]string, len(komoditas.All))
	for _, name := range komoditas.All {
		mapping[name] = name
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "komoditas": komoditas.All, "mapping": mapping})
}

func (f *FakeBackend) handleScrape(w http.ResponseWriter, r *http.Request) {
	days, _ := recordedFrom(r).Body["days_back"].(float64)
	if days <= 0 || days > 365 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "parameter days_back harus berupa angka antara 1-365"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"data_saved":   int(days) * len(komoditas.All),
		"failed_dates": nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type recordedKey struct{}

func withRecorded(ctx context.Context, rec Recorded) context.Context {
	return context.WithValue(ctx, recordedKey{}, rec)
}

func recordedFrom(r *http.Request) Recorded {
	rec, _ := r.Context().Value(recordedKey{}).(Recorded)
	return rec
}
