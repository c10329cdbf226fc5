package catalog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.json")
	s, err := NewFileStore(path, nil)
	require.NoError(t, err)
	return s, path
}

func readProducts(t *testing.T, path string) []Product {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var out []Product
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestFileStore_PersistsJSONArray(t *testing.T) {
	ctx := context.Background()
	s, path := newFileStore(t)

	_, err := s.Add(ctx, televisor())
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"title":"Televisor","description":"Televisor de 42 pulgadas","price":40000,"thumbnail":"/","code":"PRO1","stock":20}]`, string(raw))
}

func TestFileStore_EmptyOrMissingFileIsEmptyCatalog(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	blank := filepath.Join(dir, "blank.json")
	require.NoError(t, os.WriteFile(blank, []byte("  \n"), 0o644))

	for _, path := range []string{blank, filepath.Join(dir, "missing.json")} {
		s, err := NewFileStore(path, nil)
		require.NoError(t, err)

		list, err := s.List(ctx)
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	}
}

func TestFileStore_ReadsExternalChanges(t *testing.T) {
	ctx := context.Background()
	s, path := newFileStore(t)

	_, err := s.Add(ctx, televisor())
	require.NoError(t, err)

	edited := []Product{televisor().withID(1), licuadora().withID(7)}
	raw, err := json.Marshal(edited)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, edited, list)

	got, ok, err := s.Get(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "PRO2", got.Code)

	third := licuadora()
	third.Code = "PRO3"
	created, err := s.Add(ctx, third)
	require.NoError(t, err)
	assert.Equal(t, 8, created.ID, "next id follows the highest id on disk")
}

func TestFileStore_CorruptFileKeepsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	s, path := newFileStore(t)

	_, err := s.Add(ctx, televisor())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err = s.List(ctx)
	require.Error(t, err)

	_, _, err = s.Get(ctx, 1)
	require.Error(t, err)

	// mutations still see the last good snapshot
	updated, err := s.Update(ctx, 1, televisor())
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ID)
	assert.Len(t, readProducts(t, path), 1, "save rewrote a valid file")
}

func TestFileStore_CorruptFileFailsConstruction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte("[{"), 0o644))

	_, err := NewFileStore(path, nil)
	assert.Error(t, err)
}

func TestFileStore_SequenceSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	s, path := newFileStore(t)

	_, err := s.Add(ctx, televisor())
	require.NoError(t, err)
	second, err := s.Add(ctx, licuadora())
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, second.ID))

	reopened, err := NewFileStore(path, nil)
	require.NoError(t, err)

	third := licuadora()
	third.Code = "PRO3"
	created, err := reopened.Add(ctx, third)
	require.NoError(t, err)
	assert.Equal(t, 3, created.ID, "deleted id 2 is not handed out again")
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	s, path := newFileStore(t)

	_, err := s.Add(ctx, televisor())
	require.NoError(t, err)
	_, err = s.Add(ctx, licuadora())
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"products.json", "products.json.seq"}, names)
}

func TestFileStore_FailedSaveLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "products.json")

	s, err := NewFileStore(path, nil)
	require.NoError(t, err)
	_, err = s.Add(ctx, televisor())
	require.NoError(t, err)

	// a directory where the temp file must be created makes the write fail
	s.path = filepath.Join(dir, "gone", "products.json")

	_, err = s.Add(ctx, licuadora())
	require.Error(t, err)
	assert.Len(t, s.products, 1)
}

func TestFileStore_SequenceWriteFailureLeavesCatalogRetryable(t *testing.T) {
	ctx := context.Background()
	s, path := newFileStore(t)

	_, err := s.Add(ctx, televisor())
	require.NoError(t, err)

	// a non-empty directory at the sequence path cannot be renamed over
	seq := path + seqExt
	require.NoError(t, os.Remove(seq))
	require.NoError(t, os.MkdirAll(seq, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(seq, "keep"), []byte("x"), 0o644))

	_, err = s.Add(ctx, licuadora())
	require.Error(t, err)
	assert.Len(t, readProducts(t, path), 1, "catalog file untouched")

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, os.RemoveAll(seq))

	created, err := s.Add(ctx, licuadora())
	require.NoError(t, err, "retry must not report a duplicate code")
	assert.Equal(t, "PRO2", created.Code)
	assert.Len(t, readProducts(t, path), 2)
}

func TestFileStore_Ping(t *testing.T) {
	s, _ := newFileStore(t)
	assert.NoError(t, s.Ping(context.Background()))

	s.path = filepath.Join(t.TempDir(), "missing-dir", "products.json")
	assert.Error(t, s.Ping(context.Background()))
}
