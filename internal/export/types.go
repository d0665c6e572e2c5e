// Package export renders meeting minutes as PDF.
package export

import (
	"errors"
	"time"
)

// Request contains parameters for an export operation
type Request struct {
	MeetingID string
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// MeetingInfo holds meeting metadata for the minutes header
type MeetingInfo struct {
	ID          string
	Title       string
	ScheduledAt time.Time
	Archived    bool
}

// PointInfo holds one agenda point
type PointInfo struct {
	Title       string
	Description string
	Author      string
	Completed   bool
	Notes       string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
