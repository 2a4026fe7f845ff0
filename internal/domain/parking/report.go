package parking

import "time"

// ReportRecord is the outcome of one status report attempt.
type ReportRecord struct {
	// RunID identifies the monitor run that sent the report.
	RunID string `json:"run_id"`
	// SentAt is the wall-clock time of the attempt.
	SentAt time.Time `json:"sent_at"`
	// LogicalTime is the feed time the snapshot was taken at.
	LogicalTime time.Duration `json:"logical_time"`
	// Occupied is the reported number of parked vehicles.
	Occupied int `json:"occupied"`
	// Capacity is the reported number of spaces.
	Capacity int `json:"capacity"`
	// Outcome is a short classification such as "success" or "timeout".
	Outcome string `json:"outcome"`
	// Error is the failure message, empty on success.
	Error string `json:"error,omitempty"`
}

// Delivered reports whether the endpoint accepted the report.
func (r *ReportRecord) Delivered() bool {
	return r.Error == ""
}
