package models

// DataStatusDay reports how many commodities have data for one date.
type DataStatusDay struct {
	Tanggal    string `json:"tanggal"`
	JumlahData int    `json:"jumlah_data"`
	Class      string `json:"class,omitempty"`
}

// Completeness classes for a data status day.
const (
	StatusEmpty    = "empty"
	StatusPartial  = "partial"
	StatusComplete = "complete"
)

// DataStatus is the scraping coverage report.
type DataStatus struct {
	Days          []DataStatusDay `json:"days"`
	TotalRequired int             `json:"totalRequired"`
}

// MappingStatus reports whether every commodity maps to a source column.
type MappingStatus struct {
	Status           string            `json:"status"`
	MissingKomoditas []string          `json:"missing_komoditas"`
	InvalidMappings  []string          `json:"invalid_mappings"`
	Message          string            `json:"message,omitempty"`
	Mapping          map[string]string `json:"mapping,omitempty"`
}

// OK reports whether scraping can run without confirmation.
func (m MappingStatus) OK() bool {
	return m.Status == "ok"
}

// ScrapeResult is the outcome of a scraping run.
type ScrapeResult struct {
	Status      string   `json:"status"`
	Message     string   `json:"message,omitempty"`
	DataSaved   int      `json:"data_saved"`
	FailedDates []string `json:"failed_dates"`
}
