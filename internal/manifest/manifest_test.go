package manifest

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armgen/synthfw/internal/assemble"
	"github.com/armgen/synthfw/internal/genconfig"
)

func TestBuilderCountsSuccessesAndFailures(t *testing.T) {
	b := NewBuilder()
	b.AddResult(assemble.Result{ImageID: "fw_1_000000", SizeBytes: 4096})
	b.AddResult(assemble.Result{ImageID: "fw_1_000001", SizeBytes: 8192})
	b.AddFailure("fw_1_000002", errors.New("boom"))

	success, failed := b.Counts()
	assert.Equal(t, 2, success)
	assert.Equal(t, 1, failed)
}

func TestBuilderSaveWritesManifestAndJSONL(t *testing.T) {
	b := NewBuilder()
	b.AddResult(assemble.Result{
		ImageID: "fw_1_000000", SizeBytes: 4096, PrimaryISA: "arm32",
		ISALabel: "arm32", IsMultiISA: false, CodeBytes: 1024,
	})
	b.AddResult(assemble.Result{
		ImageID: "fw_1_000001", SizeBytes: 8192, PrimaryISA: "arm32",
		ISALabel: "arm32+mips32", IsMultiISA: true, CodeBytes: 2048,
	})

	dir := t.TempDir()
	cfg := genconfig.Default()
	cfg.Seed = 1
	require.NoError(t, b.Save(dir, cfg))

	manifestBytes, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(manifestBytes, &decoded))
	summary := decoded["summary"].(map[string]any)
	assert.Equal(t, float64(2), summary["total_generated"])
	assert.Equal(t, float64(12288), summary["total_bytes"])

	f, err := os.Open(filepath.Join(dir, "images.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var e0 Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &e0))
	assert.Equal(t, "fw_1_000000", e0.ImageID)
}

func TestBuilderSummaryTableListsEachISALabel(t *testing.T) {
	b := NewBuilder()
	b.AddResult(assemble.Result{ImageID: "fw_1_000000", SizeBytes: 100, ISALabel: "arm32"})
	b.AddResult(assemble.Result{ImageID: "fw_1_000001", SizeBytes: 200, ISALabel: "mips32"})

	out := b.SummaryTable()
	assert.Contains(t, out, "arm32")
	assert.Contains(t, out, "mips32")
	assert.Contains(t, out, "TOTAL")
	assert.True(t, strings.Contains(out, "300") || strings.Contains(out, "2"))
}

func TestBuilderSaveWithNoEntriesProducesEmptyJSONL(t *testing.T) {
	b := NewBuilder()
	dir := t.TempDir()
	require.NoError(t, b.Save(dir, genconfig.Default()))

	data, err := os.ReadFile(filepath.Join(dir, "images.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(string(data)))
}
