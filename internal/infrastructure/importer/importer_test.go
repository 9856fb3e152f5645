package importer_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/alem-hub/training-planner/internal/domain/training"
	"github.com/alem-hub/training-planner/internal/infrastructure/importer"
	"github.com/alem-hub/training-planner/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/training-planner/pkg/logger"
)

type fakeWriter struct {
	sets  []training.ContentSet
	items map[string][]training.Translation
	err   error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{items: make(map[string][]training.Translation)}
}

func (w *fakeWriter) UpsertSet(_ context.Context, set training.ContentSet) error {
	if w.err != nil {
		return w.err
	}
	w.sets = append(w.sets, set)
	return nil
}

func (w *fakeWriter) UpsertTranslation(_ context.Context, setID string, item training.Translation) error {
	if w.err != nil {
		return w.err
	}
	w.items[setID] = append(w.items[setID], item)
	return nil
}

// sampleWorkbook has a "Sheet1" with explicit set ids and a "nouns" sheet
// that relies on the sheet name.
func sampleWorkbook(t *testing.T) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })

	rows := [][]any{
		{"set", "translation_id", "word", "translation"},
		{"verbs", "v-1", "run", "бежать"},
		{"verbs", "v-2", " go ", "идти"},
		{"verbs", "", "skipped", "пропуск"},
		{"adjectives", "a-1", "big", "большой"},
	}
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cellRef, &row))
	}

	_, err := f.NewSheet("nouns")
	require.NoError(t, err)
	nouns := [][]any{
		{"set", "translation_id", "word", "translation"},
		{"", "n-1", "house", "дом"},
		{"", "n-2", "tree", "дерево"},
	}
	for i, row := range nouns {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("nouns", cellRef, &row))
	}
	return f
}

func TestImportFile(t *testing.T) {
	f := sampleWorkbook(t)
	path := filepath.Join(t.TempDir(), "content.xlsx")
	require.NoError(t, f.SaveAs(path))

	writer := newFakeWriter()
	im := importer.New(writer, logger.Discard())

	result, err := im.ImportFile(context.Background(), path, importer.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Sheets)
	assert.Equal(t, 6, result.TotalProcessed)
	assert.Equal(t, 3, result.Sets)
	assert.Equal(t, 5, result.Items)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.Errors)

	assert.Equal(t, []training.ContentSet{
		{ID: "verbs", Name: "verbs"},
		{ID: "adjectives", Name: "adjectives"},
		{ID: "nouns", Name: "nouns"},
	}, writer.sets)
	assert.Equal(t, []training.Translation{
		{ID: "v-1", Word: "run", Translation: "бежать"},
		{ID: "v-2", Word: "go", Translation: "идти"},
	}, writer.items["verbs"])
	assert.Len(t, writer.items["nouns"], 2)
}

func TestImport_SingleSheet(t *testing.T) {
	f := sampleWorkbook(t)
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	writer := newFakeWriter()
	cfg := importer.DefaultConfig()
	cfg.SheetName = "nouns"

	result, err := importer.New(writer, logger.Discard()).Import(context.Background(), bytes.NewReader(buf.Bytes()), cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Sheets)
	assert.Equal(t, 2, result.Items)
	assert.Equal(t, []training.ContentSet{{ID: "nouns", Name: "nouns"}}, writer.sets)
}

func TestImport_StoreErrorStops(t *testing.T) {
	f := sampleWorkbook(t)
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	writer := newFakeWriter()
	writer.err = errors.New("store down")

	result, err := importer.New(writer, logger.Discard()).Import(context.Background(), buf, importer.DefaultConfig())
	require.ErrorIs(t, err, writer.err)
	assert.Contains(t, err.Error(), `sheet "Sheet1" row 2`)
	assert.Zero(t, result.Items)
}

func TestImport_MissingFile(t *testing.T) {
	_, err := importer.New(newFakeWriter(), nil).ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.xlsx"), importer.DefaultConfig())
	assert.Error(t, err)
}

func TestImport_CancelledContext(t *testing.T) {
	f := sampleWorkbook(t)
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = importer.New(newFakeWriter(), logger.Discard()).Import(ctx, buf, importer.DefaultConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImport_IntoSQLite(t *testing.T) {
	ctx := context.Background()
	conn, err := sqlite.Open(ctx, sqlite.Config{Path: sqlite.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	store := sqlite.NewStore(conn)

	buf, err := sampleWorkbook(t).WriteToBuffer()
	require.NoError(t, err)
	_, err = importer.New(store, logger.Discard()).Import(ctx, buf, importer.DefaultConfig())
	require.NoError(t, err)

	tr, err := training.NewTraining("tr-import", 7, []string{"verbs", "nouns"}, time.Now())
	require.NoError(t, err)

	var ids []string
	err = store.WithinTx(ctx, func(ctx context.Context, uow training.UnitOfWork) error {
		if _, err := uow.AssignSets(ctx, tr, tr.SetIDs); err != nil {
			return err
		}
		ids, err = uow.ListItemIDs(ctx, tr.ID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"n-1", "n-2", "v-1", "v-2"}, ids)
}
