package etl

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/segmentio/parquet-go"

	"github.com/raaihank/pdn-sentinel/internal/config"
	"github.com/raaihank/pdn-sentinel/internal/logger"
	"github.com/raaihank/pdn-sentinel/internal/privacy"
	"github.com/raaihank/pdn-sentinel/internal/report"
	"github.com/raaihank/pdn-sentinel/internal/workflow"
)

var erase = workflow.DeciderFunc(func(ctx context.Context, req workflow.Request) (workflow.Decision, error) {
	return workflow.Erase, nil
})

func newEngine(reg *privacy.Registry) *workflow.Engine {
	log := logger.NewNop()
	return workflow.NewEngine(privacy.NewDetector(reg, log), privacy.NewRedactor(reg, ""), workflow.Options{}, log)
}

func batchConfig() *config.BatchConfig {
	return &config.GetDefaults().Batch
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func readReport(t *testing.T, path string) []ReportRow {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[ReportRow](f)
	defer reader.Close()

	rows := make([]ReportRow, 16)
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("read report: %v", err)
	}
	return rows[:n]
}

func TestProcessCSV(t *testing.T) {
	input := writeFile(t, "docs.csv", "id,text\n"+
		"a1,\"Рядом военный полигон. Погода хорошая.\"\n"+
		"a2,Погода хорошая.\n"+
		"a3,\"   \"\n")
	output := filepath.Join(t.TempDir(), "out", "report.parquet")

	p, err := NewPipeline(newEngine(privacy.ConfidentialRules()), batchConfig(), Options{Decider: erase}, nil)
	if err != nil {
		t.Fatal(err)
	}
	result, err := p.ProcessFile(context.Background(), input, output)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if result.TotalRecords != 3 || result.ProcessedOK != 2 || result.Skipped != 1 {
		t.Errorf("result = %+v", result)
	}

	rows := readReport(t, output)
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].ID != "a1" || rows[0].Status != report.StatusSafe || rows[0].Text != "Погода хорошая." || rows[0].Erased != 1 {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if !strings.Contains(rows[0].Detected, privacy.CategoryMilitary) {
		t.Errorf("detected = %q", rows[0].Detected)
	}
	if rows[1].Matches != 0 || rows[1].Text != "Погода хорошая." {
		t.Errorf("row 1 = %+v", rows[1])
	}
	if rows[2].Status != StatusSkipped || rows[2].Error == "" {
		t.Errorf("row 2 = %+v", rows[2])
	}

	if stats := p.GetStats(); stats.RecordsRead != 3 || stats.RecordsInvalid != 1 || stats.RowsWritten != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestProcessBlocked(t *testing.T) {
	input := writeFile(t, "docs.csv", "text\nРядом военный полигон.\n")
	output := filepath.Join(t.TempDir(), "report.parquet")

	ignore := workflow.DeciderFunc(func(ctx context.Context, req workflow.Request) (workflow.Decision, error) {
		return workflow.Ignore, nil
	})
	p, err := NewPipeline(newEngine(privacy.ConfidentialRules()), batchConfig(), Options{Decider: ignore}, nil)
	if err != nil {
		t.Fatal(err)
	}
	result, err := p.ProcessFile(context.Background(), input, output)
	if err != nil {
		t.Fatal(err)
	}
	if result.Blocked != 1 {
		t.Errorf("result = %+v", result)
	}

	rows := readReport(t, output)
	if len(rows) != 1 || rows[0].ID != "row-1" || rows[0].Status != report.StatusBlocked {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Violated != privacy.CategoryMilitary || rows[0].LegalBasis != privacy.BasisMilitary {
		t.Errorf("row = %+v", rows[0])
	}
}

func TestScanJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"array", `[{"id": 7, "text": "Пишите на test@example.com"}, {"id": 8, "text": "Погода хорошая"}]`},
		{"lines", "{\"id\": 7, \"text\": \"Пишите на test@example.com\"}\n{\"id\": 8, \"text\": \"Погода хорошая\"}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := writeFile(t, "docs.json", tt.body)
			output := filepath.Join(t.TempDir(), "report.parquet")

			p, err := NewPipeline(newEngine(privacy.ConfidentialRules()), batchConfig(), Options{Task: TaskScan}, nil)
			if err != nil {
				t.Fatal(err)
			}
			result, err := p.ProcessFile(context.Background(), input, output)
			if err != nil {
				t.Fatalf("ProcessFile: %v", err)
			}
			if result.TotalRecords != 2 || result.Flagged != 1 {
				t.Errorf("result = %+v", result)
			}

			rows := readReport(t, output)
			if len(rows) != 2 || rows[0].ID != "7" || rows[0].Status != report.StatusFlagged || rows[0].Text != "" {
				t.Fatalf("rows = %+v", rows)
			}
			if !strings.Contains(rows[0].Detected, privacy.CategoryEmail) {
				t.Errorf("detected = %q", rows[0].Detected)
			}
			if rows[1].Status != report.StatusClean {
				t.Errorf("row 1 = %+v", rows[1])
			}
		})
	}
}

type inputRow struct {
	DocID string `parquet:"doc_id"`
	Body  string `parquet:"body"`
}

func TestAnonymizeParquet(t *testing.T) {
	input := filepath.Join(t.TempDir(), "docs.parquet")
	f, err := os.Create(input)
	if err != nil {
		t.Fatal(err)
	}
	w := parquet.NewGenericWriter[inputRow](f)
	if _, err := w.Write([]inputRow{{DocID: "p1", Body: "Звоните +79123456789"}}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cfg := batchConfig()
	cfg.IDColumn = "doc_id"
	cfg.TextColumn = "body"
	output := filepath.Join(t.TempDir(), "report.parquet")

	p, err := NewPipeline(newEngine(privacy.PersonalDataRules()), cfg, Options{Task: TaskAnonymize, Mode: privacy.ModeDelete}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.ProcessFile(context.Background(), input, output); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	rows := readReport(t, output)
	if len(rows) != 1 || rows[0].ID != "p1" || rows[0].Text != "Звоните "+privacy.DefaultPlaceholder {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestMaxRecordsAndFailures(t *testing.T) {
	input := writeFile(t, "docs.csv", "id,text\n1,Рядом военный полигон\n2,Рядом военный полигон\n3,Рядом военный полигон\n")
	output := filepath.Join(t.TempDir(), "report.parquet")

	failing := workflow.DeciderFunc(func(ctx context.Context, req workflow.Request) (workflow.Decision, error) {
		return "", errors.New("reviewer unavailable")
	})
	cfg := batchConfig()
	cfg.MaxRecords = 2
	p, err := NewPipeline(newEngine(privacy.ConfidentialRules()), cfg, Options{Decider: failing}, nil)
	if err != nil {
		t.Fatal(err)
	}
	result, err := p.ProcessFile(context.Background(), input, output)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalRecords != 2 || result.ProcessedFailed != 2 || len(result.Errors) != 2 {
		t.Errorf("result = %+v", result)
	}
	for _, row := range readReport(t, output) {
		if row.Status != StatusFailed || !strings.Contains(row.Error, "reviewer unavailable") || row.Text != "" {
			t.Errorf("row = %+v", row)
		}
	}
}

func TestPipelineErrors(t *testing.T) {
	if _, err := NewPipeline(newEngine(privacy.ConfidentialRules()), batchConfig(), Options{}, nil); err == nil {
		t.Error("process task without a decider should fail")
	}

	p, err := NewPipeline(newEngine(privacy.ConfidentialRules()), batchConfig(), Options{Task: TaskScan}, nil)
	if err != nil {
		t.Fatal(err)
	}
	input := writeFile(t, "docs.csv", "id,body\n1,x\n")
	if _, err := p.ProcessFile(context.Background(), input, filepath.Join(t.TempDir(), "r.parquet")); err == nil {
		t.Error("missing text column should fail")
	}
	if _, err := p.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "none.csv"), filepath.Join(t.TempDir(), "r.parquet")); err == nil {
		t.Error("missing input should fail")
	}
	bad := writeFile(t, "bad.parquet", "not a parquet file")
	if _, err := p.ProcessFile(context.Background(), bad, filepath.Join(t.TempDir(), "r.parquet")); err == nil {
		t.Error("malformed parquet should fail")
	}
}

func TestParseTaskAndFormat(t *testing.T) {
	for in, want := range map[string]Task{"": TaskProcess, "scan": TaskScan, " Anonymize ": TaskAnonymize} {
		if got, err := ParseTask(in); err != nil || got != want {
			t.Errorf("ParseTask(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseTask("train"); err == nil {
		t.Error("expected error for unknown task")
	}

	formats := map[string]FileFormat{
		"a.csv":        FormatCSV,
		"a.PARQUET":    FormatParquet,
		"a.jsonl":      FormatJSON,
		"a.json":       FormatJSON,
		"no_extension": FormatCSV,
	}
	for name, want := range formats {
		if got := DetectFileFormat(name); got != want {
			t.Errorf("DetectFileFormat(%q) = %q, want %q", name, got, want)
		}
	}
}
