// Package manifest collects per-image assembly results and writes the
// batch-level manifest.json and images.jsonl files, plus a human-readable
// CLI summary table.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/armgen/synthfw/internal/assemble"
	"github.com/armgen/synthfw/internal/genconfig"
)

// Entry is one successfully assembled image, recorded for images.jsonl.
type Entry struct {
	ImageID    string `json:"image_id"`
	Success    bool   `json:"success"`
	SizeBytes  int    `json:"size_bytes"`
	PrimaryISA string `json:"primary_isa"`
	ISALabel   string `json:"isa_label"`
	IsMultiISA bool   `json:"is_multi_isa"`
	CodeBytes  int    `json:"code_bytes"`
}

// FailedEntry records an image that failed to assemble.
type FailedEntry struct {
	ImageID string `json:"image_id"`
	Error   string `json:"error"`
}

// Builder accumulates results across a generation batch.
type Builder struct {
	entries []Entry
	failed  []FailedEntry
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddResult records a successful assembly.
func (b *Builder) AddResult(res assemble.Result) {
	b.entries = append(b.entries, Entry{
		ImageID:    res.ImageID,
		Success:    true,
		SizeBytes:  res.SizeBytes,
		PrimaryISA: res.PrimaryISA,
		ISALabel:   res.ISALabel,
		IsMultiISA: res.IsMultiISA,
		CodeBytes:  res.CodeBytes,
	})
}

// AddFailure records an image that could not be assembled.
func (b *Builder) AddFailure(imageID string, err error) {
	b.failed = append(b.failed, FailedEntry{ImageID: imageID, Error: err.Error()})
}

// Counts returns the number of successes and failures recorded so far.
func (b *Builder) Counts() (success, failed int) {
	return len(b.entries), len(b.failed)
}

// Save writes manifest.json and images.jsonl into firmwareDir.
func (b *Builder) Save(firmwareDir string, cfg genconfig.Config) error {
	totalBytes := 0
	totalCode := 0
	multiISACount := 0
	isaCounts := map[string]int{}
	dirCounts := map[string]int{}

	for _, e := range b.entries {
		totalBytes += e.SizeBytes
		totalCode += e.CodeBytes
		if e.IsMultiISA {
			multiISACount++
		}
		isaCounts[e.PrimaryISA]++
		dirCounts[e.ISALabel]++
	}

	avgCodeFraction := 0.0
	if totalBytes > 0 {
		avgCodeFraction = float64(totalCode) / float64(totalBytes)
	}
	multiISAFraction := 0.0
	if len(b.entries) > 0 {
		multiISAFraction = float64(multiISACount) / float64(len(b.entries))
	}

	manifest := map[string]any{
		"generator": "synthfw",
		"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		"config": map[string]any{
			"seed":                  cfg.Seed,
			"num_images":            cfg.NumImages,
			"min_size":              cfg.MinSize,
			"max_size":              cfg.MaxSize,
			"multi_isa_probability": cfg.MultiISAProbability,
		},
		"summary": map[string]any{
			"total_generated":     len(b.entries),
			"total_failed":        len(b.failed),
			"total_bytes":         totalBytes,
			"total_code_bytes":    totalCode,
			"avg_code_fraction":   avgCodeFraction,
			"multi_isa_count":     multiISACount,
			"multi_isa_fraction":  multiISAFraction,
			"isa_distribution":    sortedCounts(isaCounts),
			"directory_counts":    sortedCounts(dirCounts),
		},
	}

	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: marshal: %w", err)
	}
	if err := os.WriteFile(filepath.Join(firmwareDir, "manifest.json"), manifestBytes, 0o644); err != nil {
		return fmt.Errorf("manifest: write manifest.json: %w", err)
	}

	jsonlPath := filepath.Join(firmwareDir, "images.jsonl")
	f, err := os.Create(jsonlPath)
	if err != nil {
		return fmt.Errorf("manifest: create images.jsonl: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, e := range b.entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("manifest: write images.jsonl: %w", err)
		}
	}

	return nil
}

func sortedCounts(m map[string]int) map[string]int {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]int, len(m))
	for _, k := range keys {
		out[k] = m[k]
	}
	return out
}

// SummaryTable renders a human-readable table of per-ISA-label image counts
// and total bytes, for CLI output after a generation run.
func (b *Builder) SummaryTable() string {
	dirCounts := map[string]int{}
	dirBytes := map[string]int{}
	for _, e := range b.entries {
		dirCounts[e.ISALabel]++
		dirBytes[e.ISALabel] += e.SizeBytes
	}

	labels := make([]string, 0, len(dirCounts))
	for l := range dirCounts {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	t := table.NewWriter()
	t.AppendHeader(table.Row{"ISA Label", "Images", "Total Bytes"})
	for _, l := range labels {
		t.AppendRow(table.Row{l, dirCounts[l], dirBytes[l]})
	}
	t.AppendFooter(table.Row{"TOTAL", len(b.entries), sumValues(dirBytes)})
	return t.Render()
}

func sumValues(m map[string]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}
