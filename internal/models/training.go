package models

// TrainingStatus is the lifecycle of a backend training job.
type TrainingStatus string

const (
	TrainingIdle      TrainingStatus = "idle"
	TrainingRunning   TrainingStatus = "running"
	TrainingCompleted TrainingStatus = "completed"
	TrainingFailed    TrainingStatus = "failed"
)

// Terminal reports whether polling should stop on this status.
func (s TrainingStatus) Terminal() bool {
	return s == TrainingCompleted || s == TrainingFailed
}

// TrainingJob mirrors the backend training_status object.
type TrainingJob struct {
	IsRunning       bool           `json:"is_training"`
	Status          TrainingStatus `json:"status"`
	Progress        int            `json:"progress"` // 0-100
	TargetCommodity *string        `json:"komoditas"`
	Message         string         `json:"message"`
	StartTime       *string        `json:"start_time"`
	EndTime         *string        `json:"end_time"`
}

// Normalize clamps progress and fills an empty status.
func (j TrainingJob) Normalize() TrainingJob {
	if j.Progress < 0 {
		j.Progress = 0
	}
	if j.Progress > 100 {
		j.Progress = 100
	}
	if j.Status == "" {
		j.Status = TrainingIdle
	}
	return j
}

// PreviewPoint is one row of the normalized preview the backend returns
// after preprocessing.
type PreviewPoint struct {
	Tanggal         string  `json:"Tanggal"`
	Harga           float64 `json:"Harga"`
	HargaNormalized float64 `json:"Harga_Normalized"`
}

// PreprocessResult is the per-commodity outcome of a preprocess request.
type PreprocessResult struct {
	Komoditas      string           `json:"komoditas"`
	File           string           `json:"file"`
	Status         string           `json:"status"`
	Rows           int              `json:"rows"`
	ProcessingTime float64          `json:"processing_time"`
	PreviewData    []PreviewPoint   `json:"preview_data"`
	OriginalSample []map[string]any `json:"original_sample,omitempty"`
	Error          string           `json:"error,omitempty"`
}

// Failed reports whether this item was flagged by the backend.
func (r PreprocessResult) Failed() bool {
	return r.Status == "failed" || r.Status == "error" || r.Error != ""
}

// TrainingHistoryEntry is one row of the training schedule.
type TrainingHistoryEntry struct {
	Komoditas             string `json:"komoditas"`
	TrainingDate          string `json:"training_date"`
	NextTrainingDate      string `json:"next_training_date"`
	DaysUntilNextTraining int    `json:"days_until_next_training"`
	ModelExists           bool   `json:"model_exists"`
}

// PlotInfo holds the visualization URLs for one commodity.
type PlotInfo struct {
	PredictionPlot      string `json:"prediction_plot,omitempty"`
	TrainingPlot        string `json:"training_plot,omitempty"`
	PredictionURL       string `json:"prediction_url"`
	TrainingURL         string `json:"training_url"`
	PredictionTimestamp string `json:"prediction_timestamp,omitempty"`
	TrainingTimestamp   string `json:"training_timestamp,omitempty"`
}
