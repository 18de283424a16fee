package models

// Job statuses.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCanceled  = "canceled"
)

// ScanResponse is the immediate response for POST /api/v1/scans.
type ScanResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ScanStatusResponse is the response for GET /api/v1/scans/:id.
type ScanStatusResponse struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	URL          string       `json:"url"`
	PagesVisited int          `json:"pagesVisited"`
	Report       *ScanReport  `json:"report,omitempty"`
	Error        *ErrorDetail `json:"error,omitempty"`
}

// ScanJob tracks an API-submitted scan.
type ScanJob struct {
	ID            string
	Status        string
	URL           string
	PagesVisited  int
	Report        *ScanReport
	Err           error
	CreatedAt     int64 // unix timestamp
	FinishedAt    int64
	WebhookURL    string
	WebhookSecret string
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"` // "healthy" or "degraded"
	Uptime     string `json:"uptime"`
	Version    string `json:"version"`
	Render     bool   `json:"renderEnabled"`
	ActiveJobs int    `json:"activeJobs"`
}
