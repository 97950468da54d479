package blob

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armgen/synthfw/internal/rng"
)

func writeBlob(t *testing.T, root, family, triple, config, program string, size int) {
	t.Helper()
	dir := filepath.Join(root, family, triple, config)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, program+".bin"), make([]byte, size), 0o644))
}

func TestScanIndexesBlobsByFamily(t *testing.T) {
	root := t.TempDir()
	writeBlob(t, root, "arm32", "arm-unknown-linux-gnueabi", "release", "a", 64)
	writeBlob(t, root, "arm32", "arm-unknown-linux-gnueabi", "debug", "b", 128)
	writeBlob(t, root, "mips32", "mips-unknown-linux-gnu", "release", "c", 32)

	idx, err := Scan(root)
	require.NoError(t, err)
	require.False(t, idx.IsEmpty())

	assert.Equal(t, []string{"arm32", "mips32"}, idx.Families())
	assert.Equal(t, 2, idx.BlobCount("arm32"))
	assert.Equal(t, 1, idx.BlobCount("mips32"))
	assert.Equal(t, 0, idx.BlobCount("x86"))
}

func TestScanSkipsZeroByteFiles(t *testing.T) {
	root := t.TempDir()
	writeBlob(t, root, "arm32", "arm-unknown-linux-gnueabi", "release", "empty", 0)

	idx, err := Scan(root)
	require.NoError(t, err)
	assert.True(t, idx.IsEmpty())
}

func TestScanMissingDirectoryIsEmptyNotError(t *testing.T) {
	idx, err := Scan(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.True(t, idx.IsEmpty())
}

func TestScanParsesTriplePathComponents(t *testing.T) {
	root := t.TempDir()
	writeBlob(t, root, "arm32", "arm-unknown-linux-gnueabi", "release", "prog", 64)

	idx, err := Scan(root)
	require.NoError(t, err)
	blobs := idx.GetBlobs("arm32")
	require.Len(t, blobs, 1)
	assert.Equal(t, "arm-unknown-linux-gnueabi", blobs[0].Triple)
	assert.Equal(t, "release", blobs[0].Config)
	assert.Equal(t, "prog", blobs[0].Program)
	assert.Equal(t, int64(64), blobs[0].Size)
}

func TestGetRandomBlobIsDeterministicForSameSeed(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 10; i++ {
		writeBlob(t, root, "arm32", "arm-unknown-linux-gnueabi", "release", string(rune('a'+i)), 16)
	}
	idx, err := Scan(root)
	require.NoError(t, err)

	r1 := rng.New(7)
	b1, ok := idx.GetRandomBlob("arm32", r1)
	require.True(t, ok)

	r2 := rng.New(7)
	b2, ok := idx.GetRandomBlob("arm32", r2)
	require.True(t, ok)

	assert.Equal(t, b1.Path, b2.Path)
}

func TestGetRandomBlobUnknownFamily(t *testing.T) {
	idx, err := Scan(t.TempDir())
	require.NoError(t, err)
	_, ok := idx.GetRandomBlob("nonexistent", rng.New(1))
	assert.False(t, ok)
}

func TestGetBlobDataReadsContent(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "arm32", "arm-unknown-linux-gnueabi", "release")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	want := []byte{1, 2, 3, 4}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prog.bin"), want, 0o644))

	idx, err := Scan(root)
	require.NoError(t, err)
	blobs := idx.GetBlobs("arm32")
	require.Len(t, blobs, 1)

	got, err := GetBlobData(blobs[0])
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSummaryMatchesBlobCount(t *testing.T) {
	root := t.TempDir()
	writeBlob(t, root, "arm32", "arm-unknown-linux-gnueabi", "release", "a", 16)
	writeBlob(t, root, "arm32", "arm-unknown-linux-gnueabi", "release", "b", 16)

	idx, err := Scan(root)
	require.NoError(t, err)
	summary := idx.Summary()
	assert.Equal(t, 2, summary["arm32"])
}
