package etl

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Record is one document read from the input dataset
type Record struct {
	Row  int64  `json:"row"`
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ReportRow is one row of the Parquet report written by the pipeline.
// Literal values are not written; only the output text carries data.
type ReportRow struct {
	ID           string `parquet:"id" json:"id"`
	Task         string `parquet:"task" json:"task"`
	Status       string `parquet:"status" json:"status"`
	Detected     string `parquet:"detected" json:"detected"`
	Violated     string `parquet:"violated" json:"violated"`
	LegalBasis   string `parquet:"legal_basis" json:"legal_basis"`
	Matches      int64  `parquet:"matches" json:"matches"`
	Erased       int64  `parquet:"erased" json:"erased"`
	Masked       int64  `parquet:"masked" json:"masked"`
	Ignored      int64  `parquet:"ignored" json:"ignored"`
	Text         string `parquet:"text" json:"text"`
	Error        string `parquet:"error" json:"error"`
	ProcessingMS int64  `parquet:"processing_ms" json:"processing_ms"`
}

// Report row statuses beyond the report package's verdicts
const (
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ProcessingResult represents the result of processing a dataset
type ProcessingResult struct {
	TotalRecords    int64         `json:"total_records"`
	ProcessedOK     int64         `json:"processed_ok"`
	ProcessedFailed int64         `json:"processed_failed"`
	Skipped         int64         `json:"skipped"`
	Flagged         int64         `json:"flagged"`
	Blocked         int64         `json:"blocked"`
	Duration        time.Duration `json:"duration"`
	DetectionTime   time.Duration `json:"detection_time"`
	WriteTime       time.Duration `json:"write_time"`
	Errors          []string      `json:"errors,omitempty"`
}

// ProcessingStats tracks real-time processing statistics
type ProcessingStats struct {
	StartTime      time.Time `json:"start_time"`
	RecordsRead    int64     `json:"records_read"`
	RecordsValid   int64     `json:"records_valid"`
	RecordsInvalid int64     `json:"records_invalid"`
	RowsWritten    int64     `json:"rows_written"`
	CurrentBatch   int64     `json:"current_batch"`
	ProcessingRate float64   `json:"processing_rate"` // records per second
}

// Task selects what the pipeline does with each record
type Task string

const (
	TaskScan      Task = "scan"
	TaskAnonymize Task = "anonymize"
	TaskProcess   Task = "process"
)

// ParseTask validates a task name
func ParseTask(s string) (Task, error) {
	switch t := Task(strings.ToLower(strings.TrimSpace(s))); t {
	case TaskScan, TaskAnonymize, TaskProcess:
		return t, nil
	case "":
		return TaskProcess, nil
	default:
		return "", fmt.Errorf("unknown task: %s (must be scan, anonymize, or process)", s)
	}
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}
