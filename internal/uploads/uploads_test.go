package uploads_test

import (
	"context"
	"os"
	"path/filepath"
	"qrscanner/internal/uploads"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/serrors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Setup(logger.DevelopmentEnvironment, "")

	os.Exit(m.Run())
}

func TestStore_Save(t *testing.T) {
	store, err := uploads.New(filepath.Join(t.TempDir(), "uploads"), 0)
	require.NoError(t, err)

	id := domain.NewScanID()
	info, err := store.Save(context.Background(), id, "../evil/Flyer.PDF", strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	require.Equal(t, "Flyer.PDF", info.Name)
	require.Equal(t, store.Path(id), info.Path)
	require.EqualValues(t, 8, info.Size)

	b, err := os.ReadFile(info.Path)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.7", string(b))

	// the same scan cannot be written twice
	_, err = store.Save(context.Background(), id, "again.pdf", strings.NewReader("x"))
	require.Error(t, err)
}

func TestStore_Save_rejects(t *testing.T) {
	store, err := uploads.New(t.TempDir(), 4)
	require.NoError(t, err)

	id := domain.NewScanID()
	_, err = store.Save(context.Background(), id, "notes.txt", strings.NewReader("x"))
	require.ErrorIs(t, err, serrors.ErrUnsupportedMedia)
	require.NoDirExists(t, filepath.Dir(store.Path(id)))

	_, err = store.Save(context.Background(), id, "big.pdf", strings.NewReader("12345"))
	require.ErrorIs(t, err, serrors.ErrTooLarge)
	require.NoFileExists(t, store.Path(id))

	info, err := store.Save(context.Background(), id, "ok.pdf", strings.NewReader("1234"))
	require.NoError(t, err)
	require.EqualValues(t, 4, info.Size)
}

func TestStore_Remove(t *testing.T) {
	store, err := uploads.New(t.TempDir(), 0)
	require.NoError(t, err)

	id := domain.NewScanID()
	_, err = store.Save(context.Background(), id, "a.pdf", strings.NewReader("x"))
	require.NoError(t, err)

	store.Remove(context.Background(), id)
	require.NoDirExists(t, filepath.Dir(store.Path(id)))

	// removing twice is fine
	store.Remove(context.Background(), id)
}

func TestStore_RemoveOlderThan(t *testing.T) {
	dir := t.TempDir()
	store, err := uploads.New(dir, 0)
	require.NoError(t, err)

	ctx := context.Background()
	oldID, newID := domain.NewScanID(), domain.NewScanID()
	for _, id := range []domain.ScanID{oldID, newID} {
		_, err := store.Save(ctx, id, "a.pdf", strings.NewReader("x"))
		require.NoError(t, err)
	}
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, oldID.String()), past, past))

	require.NoError(t, os.Mkdir(filepath.Join(dir, "not-a-scan"), 0o750))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "not-a-scan"), past, past))

	removed, err := store.RemoveOlderThan(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.NoFileExists(t, store.Path(oldID))
	require.FileExists(t, store.Path(newID))
	require.DirExists(t, filepath.Join(dir, "not-a-scan"))
}
