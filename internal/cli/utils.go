// Package cli provides output helpers and an HTTP client for the kotae command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// StatusResponse is the shape of the GET /api/v1/status response.
type StatusResponse struct {
	Documents        int              `json:"documents"`
	Units            int              `json:"units"`
	Rebuilding       bool             `json:"rebuilding"`
	VectorIndexSize  *int             `json:"vector_index_size,omitempty"`
	VectorIndexError string           `json:"vector_index_error,omitempty"`
	LastRun          *models.IndexRun `json:"last_run,omitempty"`
	LedgerSizeBytes  *int64           `json:"ledger_size_bytes,omitempty"`
}

// WriteStatus writes status to w in the given format.
func WriteStatus(w io.Writer, status *StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "documents:          %d   # documents in the published corpus\n", status.Documents)
	fmt.Fprintf(w, "units:              %d   # segmented units across all documents\n", status.Units)
	switch {
	case status.VectorIndexSize != nil:
		fmt.Fprintf(w, "vector_index_size:  %d   # points in the vector index\n", *status.VectorIndexSize)
	case status.VectorIndexError != "":
		fmt.Fprintf(w, "vector_index_size:  unknown (%s)\n", Truncate(status.VectorIndexError, 80))
	}
	fmt.Fprintf(w, "rebuilding:         %t\n", status.Rebuilding)
	if status.LedgerSizeBytes != nil {
		fmt.Fprintf(w, "ledger_size_bytes:  %d\n", *status.LedgerSizeBytes)
	}
	if status.LastRun != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# last index run")
		writeRunText(w, status.LastRun)
	}
	return nil
}

// WriteRuns writes index runs to w, newest first as given.
func WriteRuns(w io.Writer, runs []*models.IndexRun, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no index runs recorded")
		return nil
	}
	for i, run := range runs {
		if i > 0 {
			fmt.Fprintln(w, "─────────────────────────────────────────────────────────")
		}
		writeRunText(w, run)
	}
	return nil
}

// WriteRun writes a single run, followed by the vector index size check when count >= 0.
func WriteRun(w io.Writer, run *models.IndexRun, count int, format OutputFormat) error {
	if format == OutputJSON {
		out := struct {
			*models.IndexRun
			VectorIndexSize *int `json:"vector_index_size,omitempty"`
		}{IndexRun: run}
		if count >= 0 {
			out.VectorIndexSize = &count
		}
		return writeJSON(w, out)
	}
	writeRunText(w, run)
	if count >= 0 {
		verdict := "ok"
		if count != run.Indexed {
			verdict = "MISMATCH"
		}
		fmt.Fprintf(w, "vector_index_size:  %d   # %s against indexed units\n", count, verdict)
	}
	return nil
}

func writeRunText(w io.Writer, run *models.IndexRun) {
	fmt.Fprintf(w, "run:                %s (%s)\n", run.ID, run.Trigger)
	fmt.Fprintf(w, "status:             %s\n", run.Status)
	fmt.Fprintf(w, "started_at:         %s\n", run.StartedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "took:               %s\n", run.Duration().Round(time.Millisecond))
	}
	fmt.Fprintf(w, "documents:          %d\n", run.Documents)
	fmt.Fprintf(w, "units:              %d\n", run.Units)
	fmt.Fprintf(w, "indexed:            %d\n", run.Indexed)
	if run.Error != "" {
		fmt.Fprintf(w, "error:              %s\n", Truncate(run.Error, 200))
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
