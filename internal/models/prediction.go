package models

// PredictionPoint is one forecast value.
type PredictionPoint struct {
	Date           string  `json:"tanggal" msgpack:"tanggal"`
	PredictedPrice float64 `json:"prediksi" msgpack:"prediksi"`
}

// HistoricalPoint is one observed price.
type HistoricalPoint struct {
	Date  string  `json:"tanggal" msgpack:"tanggal"`
	Price float64 `json:"harga" msgpack:"harga"`
}

// PredictionStats summarizes a forecast against the latest observed price.
type PredictionStats struct {
	Max             float64 `json:"max" msgpack:"max"`
	Min             float64 `json:"min" msgpack:"min"`
	Avg             float64 `json:"avg" msgpack:"avg"`
	Trend           float64 `json:"trend" msgpack:"trend"`
	TrendPercentage float64 `json:"trendPercentage" msgpack:"trend_percentage"`
}

// PredictionResult is produced fresh for each request and replaces any
// previous result in full.
type PredictionResult struct {
	Komoditas   string            `json:"komoditas" msgpack:"komoditas"`
	FilterDays  int               `json:"filterDays" msgpack:"filter_days"`
	Predictions []PredictionPoint `json:"predictions" msgpack:"predictions"`
	Historical  []HistoricalPoint `json:"historical" msgpack:"historical"`
	Stats       *PredictionStats  `json:"stats,omitempty" msgpack:"stats,omitempty"`
}
