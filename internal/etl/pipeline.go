// Package etl runs the detection engine over tabular datasets and writes a
// Parquet report with one row per document.
package etl

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/raaihank/pdn-sentinel/internal/config"
	"github.com/raaihank/pdn-sentinel/internal/document"
	"github.com/raaihank/pdn-sentinel/internal/logger"
	"github.com/raaihank/pdn-sentinel/internal/privacy"
	"github.com/raaihank/pdn-sentinel/internal/report"
	"github.com/raaihank/pdn-sentinel/internal/workflow"
)

// recordsPerWorker sizes a batch relative to the worker count
const recordsPerWorker = 32

// Options selects the per-record task
type Options struct {
	Task Task
	// Mode is the redaction mode of TaskAnonymize
	Mode privacy.Mode
	// Decider resolves flagged sentences for TaskProcess
	Decider workflow.Decider
}

// Pipeline handles batch runs over datasets of documents
type Pipeline struct {
	engine *workflow.Engine
	config *config.BatchConfig
	opts   Options
	logger *logger.Logger
	stats  *ProcessingStats
	mu     sync.RWMutex
}

// NewPipeline creates a new batch pipeline
func NewPipeline(engine *workflow.Engine, cfg *config.BatchConfig, opts Options, log *logger.Logger) (*Pipeline, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.Task == "" {
		opts.Task = TaskProcess
	}
	if opts.Task == TaskProcess && opts.Decider == nil {
		return nil, errors.New("process task requires a decision source")
	}
	if opts.Task == TaskAnonymize && opts.Mode == "" {
		opts.Mode = privacy.ModeMask
	}

	return &Pipeline{
		engine: engine,
		config: cfg,
		opts:   opts,
		logger: log.WithComponent("etl"),
		stats: &ProcessingStats{
			StartTime: time.Now(),
		},
	}, nil
}

// recordReader yields records until io.EOF
type recordReader interface {
	Next() (*Record, error)
	Close() error
}

// ProcessFile runs the task over a dataset file (CSV, Parquet, or JSON)
// and writes the Parquet report to outputPath
func (p *Pipeline) ProcessFile(ctx context.Context, inputPath, outputPath string) (*ProcessingResult, error) {
	format := DetectFileFormat(inputPath)
	p.logger.Info("Starting batch pipeline",
		zap.String("file", inputPath),
		zap.String("format", string(format)),
		zap.String("task", string(p.opts.Task)),
		zap.Int("workers", p.workers()))

	p.resetStats()

	var (
		reader recordReader
		err    error
	)
	switch format {
	case FormatParquet:
		reader, err = p.openParquet(inputPath)
	case FormatJSON:
		reader, err = p.openJSON(inputPath)
	default:
		reader, err = p.openCSV(inputPath)
	}
	if err != nil {
		return nil, fmt.Errorf("%s input: %w", format, err)
	}
	defer reader.Close()

	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}
	defer out.Close()

	writer := parquet.NewGenericWriter[ReportRow](out)

	result, err := p.run(ctx, reader, func(rows []ReportRow) error {
		_, err := writer.Write(rows)
		return err
	})
	if cerr := writer.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to finalize report: %w", cerr)
	}
	if err != nil {
		return result, err
	}

	p.logger.Info("Batch pipeline completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("flagged", result.Flagged),
		zap.Int64("blocked", result.Blocked),
		zap.Duration("total_duration", result.Duration),
		zap.String("report", outputPath))

	return result, nil
}

// run reads every record, processes batches concurrently and hands each
// batch's rows to emit in input order
func (p *Pipeline) run(ctx context.Context, reader recordReader, emit func([]ReportRow) error) (*ProcessingResult, error) {
	start := time.Now()
	result := &ProcessingResult{}
	batchSize := p.workers() * recordsPerWorker
	var read int64

	for {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		batch := make([]*Record, 0, batchSize)
		for len(batch) < batchSize {
			if p.config.MaxRecords > 0 && read >= int64(p.config.MaxRecords) {
				break
			}
			rec, err := reader.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				result.Duration = time.Since(start)
				return result, fmt.Errorf("failed to read record %d: %w", read+1, err)
			}
			read++
			batch = append(batch, rec)
		}
		if len(batch) == 0 {
			break
		}

		p.mu.Lock()
		p.stats.RecordsRead += int64(len(batch))
		p.stats.CurrentBatch++
		p.mu.Unlock()

		detectStart := time.Now()
		rows, err := p.processBatch(ctx, batch)
		result.DetectionTime += time.Since(detectStart)
		if err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		p.tally(rows, result)

		writeStart := time.Now()
		if err := emit(rows); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("failed to write report rows: %w", err)
		}
		result.WriteTime += time.Since(writeStart)

		p.mu.Lock()
		p.stats.RowsWritten += int64(len(rows))
		p.mu.Unlock()

		p.reportProgress(result)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// processBatch runs the task over a batch on a bounded worker pool
func (p *Pipeline) processBatch(ctx context.Context, batch []*Record) ([]ReportRow, error) {
	rows := make([]ReportRow, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i, rec := range batch {
		i, rec := i, rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i] = p.processRecord(gctx, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

// processRecord runs the task on one record. Per-record failures are
// reported in the row, they do not stop the batch.
func (p *Pipeline) processRecord(ctx context.Context, rec *Record) ReportRow {
	row := ReportRow{ID: rec.ID, Task: string(p.opts.Task)}
	if err := document.CheckText(rec.Text); err != nil {
		row.Status = StatusSkipped
		row.Error = err.Error()
		return row
	}

	start := time.Now()
	reg := p.engine.Registry()
	var (
		rep *report.Report
		err error
	)

	switch p.opts.Task {
	case TaskScan:
		var findings privacy.Findings
		if findings, err = p.engine.Scan(ctx, rec.Text); err == nil {
			rep = report.ForScan(reg, rec.ID, findings)
		}
	case TaskAnonymize:
		var res *workflow.AnonymizeResult
		if res, err = p.engine.Anonymize(ctx, rec.Text, p.opts.Mode); err == nil {
			rep = report.ForAnonymize(reg, rec.ID, res, 0)
			row.Text = res.Text
		}
	default:
		var res *workflow.Result
		if res, err = p.engine.Process(ctx, rec.Text, p.opts.Decider); err == nil {
			rep = report.ForResult(reg, rec.ID, res, 0)
			row.Text = res.Text
		}
	}
	row.ProcessingMS = time.Since(start).Milliseconds()

	if err != nil {
		row.Status = StatusFailed
		row.Error = err.Error()
		p.logger.WithDocumentID(rec.ID).Warn("Record failed", zap.Int64("row", rec.Row), zap.Error(err))
		return row
	}

	fillRow(&row, rep)
	return row
}

func fillRow(row *ReportRow, rep *report.Report) {
	detected := make([]string, 0, len(rep.Summary.Categories))
	for _, c := range rep.Summary.Categories {
		detected = append(detected, c.Category)
	}
	row.Status = rep.Status
	row.Detected = strings.Join(detected, ",")
	row.LegalBasis = rep.LegalBasis
	row.Matches = int64(rep.Summary.Total)
	if rep.Blocked {
		row.Violated = strings.Join(rep.Categories, ",")
	}
	row.Erased = int64(rep.Decisions[workflow.Erase])
	row.Masked = int64(rep.Decisions[workflow.Mask])
	row.Ignored = int64(rep.Decisions[workflow.Ignore])
}

func (p *Pipeline) tally(rows []ReportRow, result *ProcessingResult) {
	var valid, invalid int64
	for _, row := range rows {
		result.TotalRecords++
		switch row.Status {
		case StatusSkipped:
			result.Skipped++
			invalid++
		case StatusFailed:
			result.ProcessedFailed++
			valid++
			if len(result.Errors) < 100 {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", row.ID, row.Error))
			}
		default:
			result.ProcessedOK++
			valid++
			switch row.Status {
			case report.StatusFlagged:
				result.Flagged++
			case report.StatusBlocked:
				result.Blocked++
			}
		}
	}

	p.mu.Lock()
	p.stats.RecordsValid += valid
	p.stats.RecordsInvalid += invalid
	p.mu.Unlock()
}

func (p *Pipeline) workers() int {
	if p.config == nil || p.config.Workers < 1 {
		return 1
	}
	return p.config.Workers
}

// openCSV reads a CSV file with a header row
func (p *Pipeline) openCSV(path string) (recordReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	p.logger.Info("CSV header detected", zap.Strings("columns", header))

	r := &csvReader{file: file, reader: reader, idIdx: -1, textIdx: -1, logger: p.logger}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case strings.ToLower(p.config.IDColumn):
			r.idIdx = i
		case strings.ToLower(p.config.TextColumn):
			r.textIdx = i
		}
	}
	if r.textIdx < 0 {
		file.Close()
		return nil, fmt.Errorf("text column %q not found", p.config.TextColumn)
	}
	return r, nil
}

type csvReader struct {
	file    *os.File
	reader  *csv.Reader
	idIdx   int
	textIdx int
	row     int64
	logger  *logger.Logger
}

func (r *csvReader) Next() (*Record, error) {
	for {
		fields, err := r.reader.Read()
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				r.row++
				r.logger.Warn("Failed to read CSV record", zap.Int64("row", r.row), zap.Error(err))
				continue
			}
			return nil, err
		}
		r.row++

		rec := &Record{Row: r.row}
		if r.textIdx < len(fields) {
			rec.Text = fields[r.textIdx]
		}
		if r.idIdx >= 0 && r.idIdx < len(fields) {
			rec.ID = strings.TrimSpace(fields[r.idIdx])
		}
		if rec.ID == "" {
			rec.ID = rowID(r.row)
		}
		return rec, nil
	}
}

func (r *csvReader) Close() error {
	return r.file.Close()
}

// openJSON reads either a JSON array of objects or one object per line
func (p *Pipeline) openJSON(path string) (recordReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON file: %w", err)
	}

	buffered := bufio.NewReader(file)
	r := &jsonReader{file: file, idKey: p.config.IDColumn, textKey: p.config.TextColumn}
	first, err := peekNonSpace(buffered)
	if err != nil && !errors.Is(err, io.EOF) {
		file.Close()
		return nil, fmt.Errorf("failed to read JSON file: %w", err)
	}
	r.decoder = json.NewDecoder(buffered)
	if first == '[' {
		if _, err := r.decoder.Token(); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to read JSON array: %w", err)
		}
		r.array = true
	}
	return r, nil
}

type jsonReader struct {
	file    *os.File
	decoder *json.Decoder
	array   bool
	idKey   string
	textKey string
	row     int64
}

func (r *jsonReader) Next() (*Record, error) {
	if r.array && !r.decoder.More() {
		return nil, io.EOF
	}

	var obj map[string]any
	if err := r.decoder.Decode(&obj); err != nil {
		return nil, err
	}
	r.row++

	rec := &Record{
		Row:  r.row,
		ID:   jsonString(obj[r.idKey]),
		Text: jsonString(obj[r.textKey]),
	}
	if rec.ID == "" {
		rec.ID = rowID(r.row)
	}
	return rec, nil
}

func (r *jsonReader) Close() error {
	return r.file.Close()
}

func peekNonSpace(r *bufio.Reader) (byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, r.UnreadByte()
	}
}

func jsonString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// openParquet reads the configured columns of a flat Parquet file
func (p *Pipeline) openParquet(path string) (recordReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat Parquet file: %w", err)
	}
	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}

	reader := parquet.NewReader(pf)
	r := &parquetReader{file: file, reader: reader, idCol: -1}

	schema := reader.Schema()
	text, ok := schema.Lookup(p.config.TextColumn)
	if !ok {
		reader.Close()
		file.Close()
		return nil, fmt.Errorf("text column %q not found", p.config.TextColumn)
	}
	r.textCol = text.ColumnIndex
	if id, ok := schema.Lookup(p.config.IDColumn); ok {
		r.idCol = id.ColumnIndex
	}
	return r, nil
}

type parquetReader struct {
	file    *os.File
	reader  *parquet.Reader
	idCol   int
	textCol int
	buf     []parquet.Row
	pos     int
	eof     bool
	row     int64
}

func (r *parquetReader) Next() (*Record, error) {
	if r.pos >= len(r.buf) {
		if r.eof {
			return nil, io.EOF
		}
		if r.buf == nil {
			r.buf = make([]parquet.Row, 64)
		}
		r.buf = r.buf[:cap(r.buf)]
		n, err := r.reader.ReadRows(r.buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
			r.eof = true
		}
		r.buf, r.pos = r.buf[:n], 0
		if n == 0 {
			return nil, io.EOF
		}
	}

	row := r.buf[r.pos]
	r.pos++
	r.row++

	rec := &Record{Row: r.row}
	for _, v := range row {
		if v.IsNull() {
			continue
		}
		switch v.Column() {
		case r.textCol:
			rec.Text = v.String()
		case r.idCol:
			rec.ID = v.String()
		}
	}
	if rec.ID == "" {
		rec.ID = rowID(r.row)
	}
	return rec, nil
}

func (r *parquetReader) Close() error {
	r.reader.Close()
	return r.file.Close()
}

func rowID(row int64) string {
	return "row-" + strconv.FormatInt(row, 10)
}

// reportProgress reports current processing progress
func (p *Pipeline) reportProgress(result *ProcessingResult) {
	p.mu.Lock()
	elapsed := time.Since(p.stats.StartTime)
	if elapsed > 0 {
		p.stats.ProcessingRate = float64(result.TotalRecords) / elapsed.Seconds()
	}
	rate := p.stats.ProcessingRate
	p.mu.Unlock()

	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_ok", result.ProcessedOK),
		zap.Int64("records_failed", result.ProcessedFailed),
		zap.Float64("rate_per_sec", rate),
		zap.Duration("elapsed", elapsed))
}

// resetStats resets processing statistics
func (p *Pipeline) resetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats = &ProcessingStats{
		StartTime: time.Now(),
	}
}

// GetStats returns current processing statistics
func (p *Pipeline) GetStats() *ProcessingStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := *p.stats
	return &stats
}
