// Package importer loads sets and translations from xlsx workbooks into a
// training store so that item pools exist before a training is built.
package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/alem-hub/training-planner/internal/domain/training"
	"github.com/alem-hub/training-planner/pkg/logger"
)

// Config defines the layout of the workbook.
type Config struct {
	// SheetName limits the import to one sheet. Empty imports every sheet.
	SheetName string

	// SetColumn holds the set id. When the cell is empty the sheet name is used.
	SetColumn string

	// IDColumn holds the translation id. Rows without one are skipped.
	IDColumn string

	WordColumn        string
	TranslationColumn string

	// StartRow is the first data row (1-based); rows above it are headers.
	StartRow int
}

// DefaultConfig returns the layout set | translation_id | word | translation.
func DefaultConfig() Config {
	return Config{
		SetColumn:         "A",
		IDColumn:          "B",
		WordColumn:        "C",
		TranslationColumn: "D",
		StartRow:          2,
	}
}

// Result holds the outcome of an import.
type Result struct {
	Sheets         int
	TotalProcessed int
	Sets           int
	Items          int
	Skipped        int
	Errors         []string
}

// Importer writes workbook rows through a training.ContentWriter.
type Importer struct {
	writer training.ContentWriter
	logger *slog.Logger
}

// New creates a new Importer.
func New(writer training.ContentWriter, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{writer: writer, logger: log.With(logger.Component("importer"))}
}

// ImportFile imports the workbook at path.
func (im *Importer) ImportFile(ctx context.Context, path string, cfg Config) (*Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	return im.importWorkbook(ctx, f, cfg)
}

// Import imports a workbook read from r.
func (im *Importer) Import(ctx context.Context, r io.Reader, cfg Config) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}
	defer f.Close()

	return im.importWorkbook(ctx, f, cfg)
}

func (im *Importer) importWorkbook(ctx context.Context, f *excelize.File, cfg Config) (*Result, error) {
	sheets := f.GetSheetList()
	if cfg.SheetName != "" {
		sheets = []string{cfg.SheetName}
	}
	if cfg.StartRow < 1 {
		cfg.StartRow = 1
	}

	result := &Result{Errors: make([]string, 0)}
	seenSets := make(map[string]bool)

	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return result, fmt.Errorf("failed to get rows of sheet %q: %w", sheet, err)
		}
		result.Sheets++

		for i, row := range rows {
			if i < cfg.StartRow-1 {
				continue
			}
			if err := ctx.Err(); err != nil {
				return result, err
			}
			result.TotalProcessed++

			if err := im.importRow(ctx, sheet, row, cfg, seenSets, result); err != nil {
				return result, fmt.Errorf("sheet %q row %d: %w", sheet, i+1, err)
			}
		}
	}

	im.logger.Info("workbook imported",
		slog.Int("sheets", result.Sheets),
		slog.Int("sets", result.Sets),
		slog.Int("items", result.Items),
		slog.Int("skipped", result.Skipped),
	)
	return result, nil
}

// importRow returns an error only when the store fails; bad rows are
// counted in the result.
func (im *Importer) importRow(ctx context.Context, sheet string, row []string, cfg Config, seenSets map[string]bool, result *Result) error {
	id := cell(row, cfg.IDColumn)
	if id == "" {
		result.Skipped++
		return nil
	}
	if training.ValidateID(id) != nil {
		result.Skipped++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: invalid translation id %q", sheet, id))
		return nil
	}

	setID, setName := cell(row, cfg.SetColumn), sheet
	if setID == "" {
		setID = sheet
	} else {
		setName = setID
	}

	if !seenSets[setID] {
		if err := im.writer.UpsertSet(ctx, training.ContentSet{ID: setID, Name: setName}); err != nil {
			return err
		}
		seenSets[setID] = true
		result.Sets++
	}

	item := training.Translation{
		ID:          id,
		Word:        cell(row, cfg.WordColumn),
		Translation: cell(row, cfg.TranslationColumn),
	}
	if err := im.writer.UpsertTranslation(ctx, setID, item); err != nil {
		return err
	}
	result.Items++
	return nil
}

// cell returns the trimmed value of column (e.g. "B") in row.
func cell(row []string, column string) string {
	if column == "" {
		return ""
	}
	idx, err := excelize.ColumnNameToNumber(column)
	if err != nil || idx > len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx-1])
}
