package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeObjectFile(t *testing.T, oracleDir, triple, config, program string) string {
	t.Helper()
	dir := filepath.Join(oracleDir, triple, config)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, program+".o")
	require.NoError(t, os.WriteFile(path, []byte("fake elf contents"), 0o644))
	return path
}

// fakeObjcopy returns an Objcopy that writes fixed content to outPath,
// counting invocations, without shelling out to a real toolchain.
func fakeObjcopy(content []byte, calls *int32) Objcopy {
	return func(ctx context.Context, elfPath, outPath string) error {
		atomic.AddInt32(calls, 1)
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return err
		}
		return os.WriteFile(outPath, content, 0o644)
	}
}

func TestExtractAllWritesBlobsForKnownTriples(t *testing.T) {
	oracleDir := t.TempDir()
	objectsDir := t.TempDir()
	writeObjectFile(t, oracleDir, "arm-unknown-linux-gnueabi", "release", "prog1")

	var calls int32
	e := NewExtractor(fakeObjcopy([]byte{1, 2, 3, 4}, &calls))

	summary, err := e.ExtractAll(context.Background(), oracleDir, objectsDir, 4, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 0, summary.Cached)
	assert.EqualValues(t, 1, calls)

	out := filepath.Join(objectsDir, "arm32", "arm-unknown-linux-gnueabi", "release", "prog1.bin")
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)
}

func TestExtractAllSkipsUnknownTriple(t *testing.T) {
	oracleDir := t.TempDir()
	objectsDir := t.TempDir()
	writeObjectFile(t, oracleDir, "some-bogus-triple", "release", "prog1")

	var calls int32
	e := NewExtractor(fakeObjcopy([]byte{1}, &calls))

	summary, err := e.ExtractAll(context.Background(), oracleDir, objectsDir, 4, false)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.EqualValues(t, 0, calls)
}

func TestExtractAllUsesCacheWhenFresh(t *testing.T) {
	oracleDir := t.TempDir()
	objectsDir := t.TempDir()
	elfPath := writeObjectFile(t, oracleDir, "arm-unknown-linux-gnueabi", "release", "prog1")

	outPath := filepath.Join(objectsDir, "arm32", "arm-unknown-linux-gnueabi", "release", "prog1.bin")
	require.NoError(t, os.MkdirAll(filepath.Dir(outPath), 0o755))
	require.NoError(t, os.WriteFile(outPath, []byte{9, 9}, 0o644))

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(outPath, future, future))
	require.NoError(t, os.Chtimes(elfPath, time.Now(), time.Now()))

	var calls int32
	e := NewExtractor(fakeObjcopy([]byte{1, 2, 3}, &calls))

	summary, err := e.ExtractAll(context.Background(), oracleDir, objectsDir, 4, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Cached)
	assert.EqualValues(t, 0, calls, "a fresh cache entry must not invoke objcopy")
}

func TestExtractAllForceIgnoresCache(t *testing.T) {
	oracleDir := t.TempDir()
	objectsDir := t.TempDir()
	elfPath := writeObjectFile(t, oracleDir, "arm-unknown-linux-gnueabi", "release", "prog1")

	outPath := filepath.Join(objectsDir, "arm32", "arm-unknown-linux-gnueabi", "release", "prog1.bin")
	require.NoError(t, os.MkdirAll(filepath.Dir(outPath), 0o755))
	require.NoError(t, os.WriteFile(outPath, []byte{9, 9}, 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(outPath, future, future))
	_ = elfPath

	var calls int32
	e := NewExtractor(fakeObjcopy([]byte{1, 2, 3}, &calls))

	summary, err := e.ExtractAll(context.Background(), oracleDir, objectsDir, 4, true)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Cached)
	assert.EqualValues(t, 1, calls)
}

func TestExtractAllCleansUpEmptyOutput(t *testing.T) {
	oracleDir := t.TempDir()
	objectsDir := t.TempDir()
	writeObjectFile(t, oracleDir, "arm-unknown-linux-gnueabi", "release", "prog1")

	var calls int32
	e := NewExtractor(fakeObjcopy([]byte{}, &calls))

	summary, err := e.ExtractAll(context.Background(), oracleDir, objectsDir, 4, false)
	require.Error(t, err)
	assert.Equal(t, 1, summary.Failed)

	out := filepath.Join(objectsDir, "arm32", "arm-unknown-linux-gnueabi", "release", "prog1.bin")
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "empty .text output must be removed")
}

func TestExtractAllAggregatesMultipleFailures(t *testing.T) {
	oracleDir := t.TempDir()
	objectsDir := t.TempDir()
	writeObjectFile(t, oracleDir, "arm-unknown-linux-gnueabi", "release", "prog1")
	writeObjectFile(t, oracleDir, "arm-unknown-linux-gnueabi", "release", "prog2")

	failing := func(ctx context.Context, elfPath, outPath string) error {
		return errors.New("objcopy failed")
	}
	e := NewExtractor(failing)

	summary, err := e.ExtractAll(context.Background(), oracleDir, objectsDir, 4, false)
	require.Error(t, err)
	assert.Equal(t, 2, summary.Failed)
}

func TestExtractAllTimesOutSlowObjcopy(t *testing.T) {
	oracleDir := t.TempDir()
	objectsDir := t.TempDir()
	writeObjectFile(t, oracleDir, "arm-unknown-linux-gnueabi", "release", "prog1")

	blocking := func(ctx context.Context, elfPath, outPath string) error {
		<-ctx.Done()
		return ctx.Err()
	}
	e := NewExtractor(blocking)

	start := time.Now()
	summary, err := e.ExtractAll(context.Background(), oracleDir, objectsDir, 1, false)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Less(t, elapsed, perFileTimeout+5*time.Second)
}

func TestExtractAllNoObjectFiles(t *testing.T) {
	oracleDir := t.TempDir()
	objectsDir := t.TempDir()

	var calls int32
	e := NewExtractor(fakeObjcopy([]byte{1}, &calls))
	summary, err := e.ExtractAll(context.Background(), oracleDir, objectsDir, 4, false)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
}
