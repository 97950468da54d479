package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/armgen/synthfw/internal/blob"
	"github.com/armgen/synthfw/internal/genconfig"
	"github.com/armgen/synthfw/internal/header"
	"github.com/armgen/synthfw/internal/rng"
)

func writeBlob(t *testing.T, root, family, triple, config, program string, size int) {
	t.Helper()
	dir := filepath.Join(root, family, triple, config)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, program+".bin"), make([]byte, size), 0o644))
}

func buildEngine(t *testing.T, minSize, maxSize int) *Engine {
	t.Helper()
	root := t.TempDir()
	writeBlob(t, root, "arm32", "arm-unknown-linux-gnueabi", "release", "a", 96)
	writeBlob(t, root, "arm32", "arm-unknown-linux-gnueabi", "release", "b", 160)
	writeBlob(t, root, "mips32_be", "mips-unknown-linux-gnu", "release", "c", 128)
	writeBlob(t, root, "x86", "i686-unknown-linux-gnu", "release", "d", 200)

	idx, err := blob.Scan(root)
	require.NoError(t, err)

	cfg := genconfig.Default()
	cfg.MinSize = minSize
	cfg.MaxSize = maxSize
	cfg.Seed = 1234
	cfg.MinImagesPerCombo = 1

	engine, err := NewEngine(idx, cfg)
	require.NoError(t, err)
	return engine
}

// EngineSuite groups the cases that all need the same indexed-blob fixture,
// rebuilt fresh for every test so no case can leak state into another.
type EngineSuite struct {
	suite.Suite

	engine *Engine
}

func (s *EngineSuite) SetupTest() {
	s.engine = buildEngine(s.T(), 4096, 16384)
}

func (s *EngineSuite) TestGenerateImageTilesExactly() {
	for seed := int64(0); seed < 30; seed++ {
		r := rng.New(seed)
		img := s.engine.GenerateImage(r, int(seed), Options{PrimaryISA: "arm32"})
		s.Require().NoError(img.ValidateTiling(), "seed %d", seed)
	}
}

func (s *EngineSuite) TestGenerateImageCodeSectionsAreAligned() {
	for seed := int64(0); seed < 30; seed++ {
		r := rng.New(seed)
		img := s.engine.GenerateImage(r, int(seed), Options{PrimaryISA: "arm32"})
		for _, sec := range img.CodeSections() {
			s.NotEmpty(sec.ISAFamily, "seed %d: code section missing ISA family", seed)
			if sec.Alignment > 1 {
				s.Zero(sec.Offset%sec.Alignment, "seed %d: code section at 0x%x not %d-aligned", seed, sec.Offset, sec.Alignment)
			}
		}
	}
}

func (s *EngineSuite) TestGenerateImageAtMostOneHeaderAtOffsetZero() {
	for seed := int64(0); seed < 30; seed++ {
		r := rng.New(seed)
		img := s.engine.GenerateImage(r, int(seed), Options{PrimaryISA: "arm32"})
		headerCount := 0
		for _, sec := range img.Sections {
			if sec.Kind == Header {
				headerCount++
				s.Equal(0, sec.Offset, "seed %d: header section not at offset 0", seed)
			}
		}
		s.LessOrEqual(headerCount, 1, "seed %d", seed)
	}
}

func (s *EngineSuite) TestGenerateImageTrailerIsFinalSectionWhenPresent() {
	for seed := int64(0); seed < 30; seed++ {
		r := rng.New(seed)
		img := s.engine.GenerateImage(r, int(seed), Options{PrimaryISA: "arm32"})
		last := img.Sections[len(img.Sections)-1]
		if last.Kind != Trailer {
			continue
		}
		s.Equal(img.TotalSize-last.Size, last.Offset, "seed %d", seed)
	}
}

func (s *EngineSuite) TestGenerateImageIsDeterministic() {
	r1 := rng.New(777)
	img1 := s.engine.GenerateImage(r1, 0, Options{PrimaryISA: "arm32"})

	r2 := rng.New(777)
	img2 := s.engine.GenerateImage(r2, 0, Options{PrimaryISA: "arm32"})

	s.Equal(img1, img2)
}

func (s *EngineSuite) TestGenerateImageHonorsForcedSecondaries() {
	r := rng.New(1)
	img := s.engine.GenerateImage(r, 0, Options{
		PrimaryISA:          "arm32",
		ForceSecondaries:    []string{"mips32_be"},
		ForceSecondariesSet: true,
	})
	s.ElementsMatch([]string{"arm32", "mips32_be"}, img.AllISAFamilies)
	s.True(img.IsMultiISA())
}

func (s *EngineSuite) TestGenerateImageUsableSizeExtensionForTinyBudgets() {
	tiny := buildEngine(s.T(), 256, 256)
	extended := 0
	for seed := int64(0); seed < 50; seed++ {
		img := tiny.GenerateImage(rng.New(seed), int(seed), Options{PrimaryISA: "arm32"})
		s.Require().NoError(img.ValidateTiling(), "seed %d", seed)
		reserved := headerEstimatedSizes[img.HeaderType] + header.TrailerSize(img.TrailerType)
		if 256-reserved < 64 {
			s.Equal(reserved+256, img.TotalSize, "seed %d", seed)
			extended++
		} else {
			s.Equal(256, img.TotalSize, "seed %d", seed)
		}
	}
	s.Greater(extended, 0, "no seed exercised the size extension")
}

func (s *EngineSuite) TestGenerateBatchRespectsPerFamilyQuota() {
	layouts := s.engine.GenerateBatch(120)

	counts := map[string]int{}
	for _, img := range layouts {
		counts[img.PrimaryISA]++
	}

	for _, fam := range []string{"arm32", "mips32_be", "x86"} {
		s.Greater(counts[fam], 0, "family %s should receive at least one image", fam)
	}
}

func (s *EngineSuite) TestGenerateBatchMeetsPerComboFloor() {
	layouts := s.engine.GenerateBatch(60)

	comboCounts := map[string]int{}
	for _, img := range layouts {
		comboCounts[img.ISALabel()]++
	}
	for label, count := range comboCounts {
		s.GreaterOrEqual(count, 1, "combo %s below floor", label)
	}
}

func (s *EngineSuite) TestGenerateBatchIsDeterministic() {
	other := buildEngine(s.T(), 4096, 16384)

	batch1 := s.engine.GenerateBatch(40)
	batch2 := other.GenerateBatch(40)

	s.Require().Len(batch1, len(batch2))
	for i := range batch1 {
		s.Equal(batch1[i].ImageID, batch2[i].ImageID)
		s.Equal(batch1[i].TotalSize, batch2[i].TotalSize)
	}
}

func (s *EngineSuite) TestGenerateBatchAllImagesTileExactly() {
	layouts := s.engine.GenerateBatch(50)
	for _, img := range layouts {
		s.NoError(img.ValidateTiling(), "image %s", img.ImageID)
	}
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func TestNewEngineErrorsWithNoBlobs(t *testing.T) {
	idx, err := blob.Scan(t.TempDir())
	require.NoError(t, err)
	_, err = NewEngine(idx, genconfig.Default())
	assert.Error(t, err)
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, 0, alignUp(0, 4))
	assert.Equal(t, 4, alignUp(1, 4))
	assert.Equal(t, 4, alignUp(4, 4))
	assert.Equal(t, 8, alignUp(5, 4))
	assert.Equal(t, 7, alignUp(7, 1))
	assert.Equal(t, 7, alignUp(7, 0))
}

func TestSplitLabel(t *testing.T) {
	assert.Equal(t, []string{"arm32"}, splitLabel("arm32"))
	assert.Equal(t, []string{"arm32", "mips32"}, splitLabel("arm32+mips32"))
}
