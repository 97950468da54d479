// Package assemble materializes an ImageLayout into actual firmware bytes
// plus the per-image JSON sidecar recording ground-truth section labels.
package assemble

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/pierrec/lz4"
	"github.com/ulikunitz/xz"

	"github.com/armgen/synthfw/internal/blob"
	"github.com/armgen/synthfw/internal/header"
	"github.com/armgen/synthfw/internal/isafamily"
	"github.com/armgen/synthfw/internal/layout"
	"github.com/armgen/synthfw/internal/rng"
)

// stringPool holds realistic firmware log/cmdline strings used to fill
// string-table and rodata sections.
var stringPool = [][]byte{
	[]byte("Copyright (c) 2024 Firmware Corp. All rights reserved.\x00"),
	[]byte("Build: release-v3.2.1-ga7f3c2d\x00"),
	[]byte("ERROR: initialization failed\x00"),
	[]byte("WARNING: low memory condition\x00"),
	[]byte("firmware.bin\x00"),
	[]byte("bootloader\x00"),
	[]byte("kernel\x00"),
	[]byte("rootfs\x00"),
	[]byte("/dev/mtdblock0\x00"),
	[]byte("/dev/ttyS0\x00"),
	[]byte("eth0\x00"),
	[]byte("wlan0\x00"),
	[]byte("DHCP client started\x00"),
	[]byte("Hardware revision: %d.%d\x00"),
	[]byte("Serial: %08X%08X\x00"),
	[]byte("Linux version 4.14.180\x00"),
	[]byte("U-Boot 2019.07\x00"),
	[]byte("Starting kernel ...\x00"),
	[]byte("Booting from flash...\x00"),
	[]byte("Image verified OK\x00"),
	[]byte("CRC check passed\x00"),
	[]byte("Decompressing...\x00"),
	[]byte("Init complete.\x00"),
	[]byte("GPIO initialized\x00"),
	[]byte("SPI flash detected: W25Q128\x00"),
	[]byte("DDR3 SDRAM: 128 MB\x00"),
	[]byte("CPU: ARMv7 Processor rev 4 (v7l)\x00"),
	[]byte("Machine: Generic DT based system\x00"),
}

var fsMagics = map[string][]byte{
	"squashfs": []byte("hsqs"),
	"jffs2":    {0x85, 0x19},
	"cramfs":   {0x45, 0x3D, 0xCD, 0x28},
	"romfs":    []byte("-rom1fs-"),
}

// SectionResult records what was actually written for one section, for the
// JSON sidecar.
type SectionResult struct {
	Offset        int            `json:"offset"`
	Size          int            `json:"size"`
	Type          string         `json:"type"`
	ISAFamily     *string        `json:"isa_family"`
	SourceTriple  string         `json:"source_triple,omitempty"`
	SourceProgram string         `json:"source_program,omitempty"`
	SourceConfig  string         `json:"source_config,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// Result is what Assemble returns for one image: the on-disk paths of its
// .bin and JSON sidecar, plus the summary fields the manifest records.
type Result struct {
	ImageID    string
	ISALabel   string
	BinPath    string
	JSONPath   string
	SizeBytes  int
	CodeBytes  int
	IsMultiISA bool
	PrimaryISA string
}

// Assembler turns layouts into firmware images on disk.
type Assembler struct {
	Index       *blob.Index
	ObjectsDir  string
	FirmwareDir string
}

// Assemble materializes img, writing `{FirmwareDir}/{isa_label}/{image_id}.bin`
// and its `.json` sidecar.
func (a *Assembler) Assemble(img layout.Image) (Result, error) {
	if err := img.ValidateTiling(); err != nil {
		return Result{}, fmt.Errorf("image %s: invalid layout: %w", img.ImageID, err)
	}

	r := rng.New(img.Seed)

	data := make([]byte, img.TotalSize)
	for i := range data {
		data[i] = 0xFF
	}

	fam, _ := isafamily.Get(img.PrimaryISA)
	endianness := fam.Endianness
	if endianness == "" {
		endianness = isafamily.Little
	}

	var sectionResults []SectionResult

	for _, sec := range img.Sections {
		switch sec.Kind {
		case layout.Header:
			res, err := header.Generate(img.HeaderType, endianness, r, header.Params{
				TotalSize:  img.TotalSize,
				BaseAddr:   fam.TypicalBaseAddr,
				FamilyName: img.PrimaryISA,
			})
			if err != nil {
				return Result{}, fmt.Errorf("assemble %s: header: %w", img.ImageID, err)
			}
			actualSize := len(res.Data)
			if actualSize > sec.Size {
				actualSize = sec.Size
			}
			copy(data[sec.Offset:sec.Offset+actualSize], res.Data[:actualSize])
			sectionResults = append(sectionResults, SectionResult{
				Offset: sec.Offset, Size: actualSize, Type: "header", Details: res.Metadata,
			})

		case layout.Code:
			codeData, sourceTriple, sourceProgram, sourceConfig := a.readCodeBlob(sec)
			if len(codeData) > 0 {
				written := 0
				for written < sec.Size {
					n := copy(data[sec.Offset+written:sec.Offset+sec.Size], codeData)
					written += n
					if n == 0 {
						break
					}
				}
			}
			family := sec.ISAFamily
			sectionResults = append(sectionResults, SectionResult{
				Offset: sec.Offset, Size: sec.Size, Type: "code",
				ISAFamily: &family, SourceTriple: sourceTriple,
				SourceProgram: sourceProgram, SourceConfig: sourceConfig,
			})

		case layout.Padding:
			fillByte := byte(0xFF)
			if v, ok := sec.FillParams["fill_byte"].(int); ok {
				fillByte = byte(v)
			}
			for i := sec.Offset; i < sec.Offset+sec.Size; i++ {
				data[i] = fillByte
			}
			pattern, _ := sec.FillParams["pattern"].(string)
			if pattern == "" {
				pattern = "0xFF"
			}
			sectionResults = append(sectionResults, SectionResult{
				Offset: sec.Offset, Size: sec.Size, Type: "padding",
				Details: map[string]any{"pattern": pattern},
			})

		case layout.StringTable:
			fillStrings(data[sec.Offset:sec.Offset+sec.Size], r)
			sectionResults = append(sectionResults, SectionResult{
				Offset: sec.Offset, Size: sec.Size, Type: "string_table",
				Details: map[string]any{"source": "generated"},
			})

		case layout.Filesystem:
			fsType, _ := sec.FillParams["fs_type"].(string)
			if fsType == "" {
				fsType = "squashfs"
			}
			fillFilesystem(data[sec.Offset:sec.Offset+sec.Size], fsType, r)
			sectionResults = append(sectionResults, SectionResult{
				Offset: sec.Offset, Size: sec.Size, Type: "filesystem",
				Details: map[string]any{
					"fs_type":     fsType,
					"compression": map[string]string{"squashfs": "deflate", "jffs2": "deflate", "cramfs": "lz4", "romfs": "xz"}[fsType],
				},
			})

		case layout.Random:
			copy(data[sec.Offset:sec.Offset+sec.Size], r.Bytes(sec.Size))
			sectionResults = append(sectionResults, SectionResult{
				Offset: sec.Offset, Size: sec.Size, Type: "random",
				Details: map[string]any{"source": "random"},
			})

		case layout.Rodata:
			fillRodata(data[sec.Offset:sec.Offset+sec.Size], r)
			sectionResults = append(sectionResults, SectionResult{
				Offset: sec.Offset, Size: sec.Size, Type: "rodata",
				Details: map[string]any{"source": "generated"},
			})

		case layout.Trailer:
			// Computed below once every other section has been written.
		}
	}

	if img.TrailerType != header.TrailerNone {
		trailerSize := header.TrailerSize(img.TrailerType)
		trailerOffset := img.TotalSize - trailerSize
		trailerRes, err := header.GenerateTrailer(img.TrailerType, data[:trailerOffset])
		if err != nil {
			return Result{}, fmt.Errorf("assemble %s: trailer: %w", img.ImageID, err)
		}
		copy(data[trailerOffset:trailerOffset+len(trailerRes.Data)], trailerRes.Data)
		sectionResults = append(sectionResults, SectionResult{
			Offset: trailerOffset, Size: len(trailerRes.Data), Type: "trailer", Details: trailerRes.Metadata,
		})
	}

	sha := sha256.Sum256(data)
	md := md5.Sum(data)
	sm3Digest := header.SM3Digest(data)

	isaLabel := img.ISALabel()
	subDir := filepath.Join(a.FirmwareDir, isaLabel)
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("assemble %s: mkdir: %w", img.ImageID, err)
	}
	binPath := filepath.Join(subDir, img.ImageID+".bin")
	jsonPath := filepath.Join(subDir, img.ImageID+".json")

	if err := os.WriteFile(binPath, data, 0o644); err != nil {
		return Result{}, fmt.Errorf("assemble %s: write bin: %w", img.ImageID, err)
	}

	codeBytes := img.CodeBytes()
	codeFraction := 0.0
	if img.TotalSize > 0 {
		codeFraction = float64(codeBytes) / float64(img.TotalSize)
	}

	metadata := map[string]any{
		"image": map[string]any{
			"id":         img.ImageID,
			"path":       fmt.Sprintf("%s/%s.bin", isaLabel, img.ImageID),
			"size_bytes": img.TotalSize,
			"sha256":     hex.EncodeToString(sha[:]),
			"md5":        hex.EncodeToString(md[:]),
			"sm3":        sm3Digest,
		},
		"isa": map[string]any{
			"primary":      img.PrimaryISA,
			"all":          img.AllISAFamilies,
			"is_multi_isa": img.IsMultiISA(),
		},
		"structure": map[string]any{
			"header_type":       img.HeaderType.String(),
			"trailer_type":      img.TrailerType.String(),
			"num_sections":      len(sectionResults),
			"num_code_sections": len(img.CodeSections()),
			"code_bytes":        codeBytes,
			"code_fraction":     codeFraction,
		},
		"sections": sectionResults,
		"generation": map[string]any{
			"seed":      img.Seed,
			"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		},
	}

	jsonBytes, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("assemble %s: marshal sidecar: %w", img.ImageID, err)
	}
	if err := os.WriteFile(jsonPath, jsonBytes, 0o644); err != nil {
		return Result{}, fmt.Errorf("assemble %s: write sidecar: %w", img.ImageID, err)
	}

	return Result{
		ImageID:    img.ImageID,
		ISALabel:   isaLabel,
		BinPath:    binPath,
		JSONPath:   jsonPath,
		SizeBytes:  img.TotalSize,
		CodeBytes:  codeBytes,
		IsMultiISA: img.IsMultiISA(),
		PrimaryISA: img.PrimaryISA,
	}, nil
}

// readCodeBlob resolves a code section's blob from fill_params, falling
// back to any blob of the same family if the exact one is missing (the
// blob cache may have been regenerated since layout was planned).
func (a *Assembler) readCodeBlob(sec layout.Spec) (data []byte, triple, program, config string) {
	triple, _ = sec.FillParams["blob_triple"].(string)
	program, _ = sec.FillParams["blob_program"].(string)
	config, _ = sec.FillParams["blob_config"].(string)

	blobPath := filepath.Join(a.ObjectsDir, sec.ISAFamily, triple, config, program+".bin")
	if d, err := os.ReadFile(blobPath); err == nil {
		return d, triple, program, config
	}

	for _, b := range a.Index.GetBlobs(sec.ISAFamily) {
		d, err := blob.GetBlobData(b)
		if err != nil {
			continue
		}
		return d, b.Triple, b.Program, b.Config
	}
	return nil, triple, program, config
}

func fillStrings(dst []byte, r *rng.Rand) {
	buf := make([]byte, 0, len(dst))
	for len(buf) < len(dst) {
		buf = append(buf, rng.ChoiceInt(r, stringPool)...)
	}
	copy(dst, buf[:len(dst)])
}

func fillRodata(dst []byte, r *rng.Rand) {
	buf := make([]byte, 0, len(dst))
	for len(buf) < len(dst) {
		if r.Float64() < 0.5 {
			buf = append(buf, rng.ChoiceInt(r, stringPool)...)
		} else {
			val := uint32(r.IntRange(0, 0xFFFFFFFF))
			reps := r.IntRange(4, 32)
			word := make([]byte, 4)
			word[0] = byte(val)
			word[1] = byte(val >> 8)
			word[2] = byte(val >> 16)
			word[3] = byte(val >> 24)
			for i := 0; i < reps; i++ {
				buf = append(buf, word...)
			}
		}
	}
	copy(dst, buf[:len(dst)])
}

// fillFilesystem writes the fs_type's magic bytes followed by content run
// through that filesystem flavor's real-world compressor, so a Filesystem
// section is byte-distinguishable from a Random section by more than its
// magic: squashfs/jffs2 use DEFLATE, cramfs uses LZ4, romfs uses LZMA/XZ,
// matching each format's actual on-disk compression scheme. The compressed
// stream is truncated, or followed by 0xFF fill, to fit the section's fixed size
// exactly — compression ratio never changes section boundaries.
func fillFilesystem(dst []byte, fsType string, r *rng.Rand) {
	magic := fsMagics[fsType]
	if magic == nil {
		magic = []byte{0, 0, 0, 0}
	}
	n := copy(dst, magic)

	remaining := len(dst) - n
	if remaining <= 0 {
		return
	}

	source := r.Bytes(remaining * 2)
	compressed := compressFor(fsType, source)

	if len(compressed) >= remaining {
		copy(dst[n:], compressed[:remaining])
	} else {
		copy(dst[n:n+len(compressed)], compressed)
		// leave the rest FF-filled (flash-erased), matching the padding
		// convention used everywhere else in the image.
		for i := n + len(compressed); i < len(dst); i++ {
			dst[i] = 0xFF
		}
	}
}

func compressFor(fsType string, src []byte) []byte {
	switch fsType {
	case "squashfs", "jffs2":
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.BestSpeed)
		if err != nil {
			return src
		}
		w.Write(src)
		w.Close()
		return buf.Bytes()

	case "cramfs":
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		w.Write(src)
		w.Close()
		return buf.Bytes()

	case "romfs":
		var buf bytes.Buffer
		w, err := xz.NewWriter(&buf)
		if err != nil {
			return src
		}
		w.Write(src)
		w.Close()
		return buf.Bytes()

	default:
		return src
	}
}
