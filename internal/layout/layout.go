// Package layout decides, for every synthetic firmware image, which
// sections it has, in what order, at what offsets, and of what ISA family —
// without touching a single content byte. The assembler later walks an
// ImageLayout and materializes it.
package layout

import (
	"fmt"
	"sort"

	"github.com/armgen/synthfw/internal/blob"
	"github.com/armgen/synthfw/internal/byterange"
	"github.com/armgen/synthfw/internal/genconfig"
	"github.com/armgen/synthfw/internal/header"
	"github.com/armgen/synthfw/internal/isafamily"
	"github.com/armgen/synthfw/internal/rng"
)

// SectionKind classifies one region of a firmware image.
type SectionKind int

const (
	Header SectionKind = iota
	Code
	Padding
	StringTable
	Filesystem
	Random
	Rodata
	Trailer
)

func (k SectionKind) String() string {
	switch k {
	case Header:
		return "header"
	case Code:
		return "code"
	case Padding:
		return "padding"
	case StringTable:
		return "string_table"
	case Filesystem:
		return "filesystem"
	case Random:
		return "random"
	case Rodata:
		return "rodata"
	case Trailer:
		return "trailer"
	default:
		return "unknown"
	}
}

// Spec describes a single section of an image: where it sits, how big it
// is, and enough context for the assembler to materialize its bytes.
type Spec struct {
	Offset     int
	Size       int
	Kind       SectionKind
	Alignment  int
	ISAFamily  string // set only for Code sections
	FillParams map[string]any
}

// Image is the complete layout specification for one firmware image. It
// carries no content bytes — only the plan the assembler executes.
type Image struct {
	ImageID        string
	TotalSize      int
	PrimaryISA     string
	HeaderType     header.Kind
	TrailerType    header.TrailerKind
	Sections       []Spec
	AllISAFamilies []string
	Seed           int64
}

// ISALabel is the directory label used to group images sharing the same
// ISA combination: sorted family names joined with '+'.
func (img Image) ISALabel() string {
	families := append([]string(nil), img.AllISAFamilies...)
	sort.Strings(families)
	label := ""
	for i, f := range families {
		if i > 0 {
			label += "+"
		}
		label += f
	}
	return label
}

// IsMultiISA reports whether the image mixes more than one ISA family.
func (img Image) IsMultiISA() bool {
	return len(img.AllISAFamilies) > 1
}

// CodeSections returns every Code-kind section, in layout order.
func (img Image) CodeSections() []Spec {
	var out []Spec
	for _, s := range img.Sections {
		if s.Kind == Code {
			out = append(out, s)
		}
	}
	return out
}

// CodeBytes sums the size of every Code-kind section.
func (img Image) CodeBytes() int {
	total := 0
	for _, s := range img.CodeSections() {
		total += s.Size
	}
	return total
}

// ValidateTiling confirms the image's sections tile [0, TotalSize) exactly,
// with no gaps and no overlap. The assembler runs this before trusting a
// layout's offsets enough to write bytes from it.
func (img Image) ValidateTiling() error {
	ranges := make(byterange.Ranges, len(img.Sections))
	for i, s := range img.Sections {
		ranges[i] = byterange.Range{Offset: uint64(s.Offset), Length: uint64(s.Size)}
	}
	if ranges.AnyOverlap() {
		return fmt.Errorf("image %s: sections overlap", img.ImageID)
	}
	ranges.Sort()
	return ranges.TilesExactly(uint64(img.TotalSize))
}

var nonCodeWeights = []rng.WeightedOption[SectionKind]{
	{Value: Padding, Weight: 40.0},
	{Value: StringTable, Weight: 15.0},
	{Value: Filesystem, Weight: 10.0},
	{Value: Random, Weight: 20.0},
	{Value: Rodata, Weight: 15.0},
}

// headerEstimatedSizes are used to budget layout before the real header
// bytes exist. Some generators emit a different length (the Cortex-M and
// AVR vector tables and the MediaTek and UEFI headers pick their size at
// random); the assembler writes at most the reserved size and leaves any
// shortfall at the 0xFF pre-fill, so the planned offsets stay exact.
var headerEstimatedSizes = map[header.Kind]int{
	header.VectorTableCortexM: 64,
	header.VectorTableARM:     32,
	header.BootVectorMIPS:     32,
	header.AVRVectorTable:     128,
	header.MSP430VectorTable:  32,
	header.UBoot:              64,
	header.AndroidBoot:        2048,
	header.TPLink:             512,
	header.MediaTek:           1024,
	header.QualcommMBN:        40,
	header.BIOSBoot:           512,
	header.UEFIStub:           512,
	header.OpenSBIStub:        48,
	header.Bare:               0,
}

func alignUp(value, alignment int) int {
	if alignment <= 1 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// Engine generates image layouts against a fixed blob index and config.
type Engine struct {
	index         *blob.Index
	config        genconfig.Config
	familyWeights []rng.WeightedOption[string]
}

// NewEngine builds an Engine. It errors if the blob index has no usable
// blobs for any known ISA family. A non-empty config.Families limits the
// primary ISAs to those families; multi-ISA secondaries drawn from the
// affinity table are not limited by it.
func NewEngine(index *blob.Index, config genconfig.Config) (*Engine, error) {
	e := &Engine{index: index, config: config}
	for _, family := range index.Families() {
		if _, ok := isafamily.Get(family); !ok {
			continue
		}
		if len(config.Families) > 0 {
			wanted := false
			for _, f := range config.Families {
				if f == family {
					wanted = true
					break
				}
			}
			if !wanted {
				continue
			}
		}
		count := index.BlobCount(family)
		if count > 0 {
			e.familyWeights = append(e.familyWeights, rng.WeightedOption[string]{Value: family, Weight: float64(count)})
		}
	}
	if len(e.familyWeights) == 0 {
		return nil, fmt.Errorf("layout: no blobs available for any ISA family")
	}
	return e, nil
}

func (e *Engine) pickPrimaryISA(r *rng.Rand) string {
	return rng.WeightedChoice(r, e.familyWeights)
}

func (e *Engine) pickSecondaryISAs(primary string, r *rng.Rand) []string {
	affinity := isafamily.MultiISAAffinity[primary]

	var available []rng.WeightedOption[string]
	for _, a := range affinity {
		if e.index.BlobCount(a.Family) > 0 {
			available = append(available, rng.WeightedOption[string]{Value: a.Family, Weight: a.Weight})
		}
	}

	if len(available) == 0 {
		for _, fw := range e.familyWeights {
			if fw.Value != primary {
				available = append(available, rng.WeightedOption[string]{Value: fw.Value, Weight: 1.0})
			}
		}
		if len(available) == 0 {
			return nil
		}
	}

	count := rng.ChoiceInt(r, []int{1, 1, 2})
	pool := available
	var secondaries []string
	for i := 0; i < count && len(pool) > 0; i++ {
		pick := rng.WeightedChoice(r, pool)
		secondaries = append(secondaries, pick)
		filtered := pool[:0]
		for _, p := range pool {
			if p.Value != pick {
				filtered = append(filtered, p)
			}
		}
		pool = filtered
	}
	return secondaries
}

func (e *Engine) pickHeaderType(family string, r *rng.Rand) header.Kind {
	fam, ok := isafamily.Get(family)
	if !ok || len(fam.HeaderTypes) == 0 {
		return header.Bare
	}
	name := rng.ChoiceInt(r, fam.HeaderTypes)
	kind, ok := header.ParseKind(name)
	if !ok {
		return header.Bare
	}
	return kind
}

func (e *Engine) pickTrailerType(r *rng.Rand) header.TrailerKind {
	return rng.WeightedChoice(r, header.TrailerWeights)
}

func (e *Engine) pickTotalSize(r *rng.Rand) int {
	size := rng.Log2Uniform(r, e.config.MinSize, e.config.MaxSize)
	return alignUp(size, 256)
}

func (e *Engine) pickNonCodeSection(r *rng.Rand, maxSize int) (SectionKind, int, map[string]any) {
	kind := rng.WeightedChoice(r, nonCodeWeights)
	params := map[string]any{}
	var size int

	switch kind {
	case Padding:
		padMax := maxSize
		if padMax > 65536 {
			padMax = 65536
		}
		if padMax < 64 {
			padMax = 64
		}
		if m := maxSize / 10; m > padMax {
			padMax = m
		}
		if padMax < 16 {
			padMax = 16
		}
		size = r.IntRange(16, padMax)
		pattern := rng.ChoiceInt(r, []int{0xFF, 0x00, 0xAA, 0xDE})
		params["pattern"] = fmt.Sprintf("0x%02X", pattern)
		params["fill_byte"] = pattern

	case StringTable:
		hi := clampInt(maxSize, 64, 4096)
		size = r.IntRange(64, hi)
		params["source"] = "generated"

	case Filesystem:
		hi := clampInt(maxSize, 512, 65536)
		size = r.IntRange(512, hi)
		params["fs_type"] = rng.ChoiceInt(r, []string{"squashfs", "jffs2", "cramfs", "romfs"})

	case Random:
		hi := clampInt(maxSize, 32, 8192)
		size = r.IntRange(32, hi)
		params["source"] = "random"

	case Rodata:
		hi := clampInt(maxSize, 64, 16384)
		size = r.IntRange(64, hi)
		params["source"] = "generated"

	default:
		hi := clampInt(maxSize, 16, 1024)
		size = r.IntRange(16, hi)
	}

	return kind, size, params
}

// clampInt mirrors the reference's max(lo, min(hi, maxSize)) idiom.
func clampInt(maxSize, lo, hi int) int {
	v := maxSize
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// Options forces parts of GenerateImage's otherwise-random decisions.
type Options struct {
	PrimaryISA          string   // "" = random
	ForceSecondaries    []string // used only when ForceSecondariesSet; empty = single-ISA
	ForceSecondariesSet bool     // true = use ForceSecondaries instead of a random pick
}

// GenerateImage produces one image layout.
func (e *Engine) GenerateImage(r *rng.Rand, seq int, opts Options) Image {
	primaryISA := opts.PrimaryISA
	if primaryISA == "" {
		primaryISA = e.pickPrimaryISA(r)
	}

	allFamilies := []string{primaryISA}
	if opts.ForceSecondariesSet {
		allFamilies = append(allFamilies, opts.ForceSecondaries...)
	} else if r.Float64() < e.config.MultiISAProbability {
		allFamilies = append(allFamilies, e.pickSecondaryISAs(primaryISA, r)...)
	}

	headerType := e.pickHeaderType(primaryISA, r)
	trailerType := e.pickTrailerType(r)
	trailerSize := header.TrailerSize(trailerType)

	totalSize := e.pickTotalSize(r)

	var sections []Spec
	cursor := 0

	headerSize := headerEstimatedSizes[headerType]
	if headerSize > 0 {
		sections = append(sections, Spec{
			Offset:     0,
			Size:       headerSize,
			Kind:       Header,
			FillParams: map[string]any{"header_type": headerType.String()},
		})
		cursor = headerSize
	}

	usableSize := totalSize - cursor - trailerSize
	if usableSize < 64 {
		totalSize = cursor + trailerSize + 256
		usableSize = 256
	}

	codeFraction := r.Uniform(0.30, 0.70)
	codeBudget := int(float64(usableSize) * codeFraction)
	noncodeBudget := usableSize - codeBudget

	codeRemaining := codeBudget
	familyQueue := append([]string(nil), allFamilies...)

	for codeRemaining >= 64 && len(familyQueue) > 0 {
		fam := familyQueue[0]
		familyQueue = append(familyQueue[1:], fam)

		alignment := 4
		if famInfo, ok := isafamily.Get(fam); ok {
			alignment = famInfo.Alignment
		}

		b, ok := e.index.GetRandomBlob(fam, r)
		if !ok {
			filtered := familyQueue[:0]
			for _, f := range familyQueue {
				if f != fam {
					filtered = append(filtered, f)
				}
			}
			familyQueue = filtered
			continue
		}

		multiplier := rng.ChoiceInt(r, []int{1, 1, 1, 2, 3})
		sectionSize := int(b.Size) * multiplier
		if sectionSize > codeRemaining {
			sectionSize = codeRemaining
		}
		if minSize := int(b.Size); minSize < codeRemaining {
			if sectionSize < minSize {
				sectionSize = minSize
			}
		} else if sectionSize < codeRemaining {
			sectionSize = codeRemaining
		}
		sectionSize = alignUp(sectionSize, alignment)
		if sectionSize > codeRemaining {
			sectionSize = codeRemaining
		}
		alignedCursor := alignUp(cursor, alignment)
		if room := totalSize - trailerSize - alignedCursor; sectionSize > room {
			sectionSize = room
		}
		if sectionSize < 4 {
			break
		}

		if alignedCursor > cursor {
			padSize := alignedCursor - cursor
			sections = append(sections, Spec{
				Offset:     cursor,
				Size:       padSize,
				Kind:       Padding,
				FillParams: map[string]any{"pattern": "0xFF", "fill_byte": 0xFF},
			})
			cursor = alignedCursor
		}

		sections = append(sections, Spec{
			Offset:    cursor,
			Size:      sectionSize,
			Kind:      Code,
			Alignment: alignment,
			ISAFamily: fam,
			FillParams: map[string]any{
				"blob_family":  fam,
				"blob_triple":  b.Triple,
				"blob_program": b.Program,
				"blob_config":  b.Config,
			},
		})
		cursor += sectionSize
		codeRemaining -= sectionSize

		if r.Float64() < 0.3 && noncodeBudget >= 64 {
			ncKind, ncSize, ncParams := e.pickNonCodeSection(r, noncodeBudget)
			if ncSize > noncodeBudget {
				ncSize = noncodeBudget
			}
			if remaining := totalSize - trailerSize - cursor; ncSize > remaining {
				ncSize = remaining
			}
			if ncSize < 1 {
				continue
			}
			sections = append(sections, Spec{Offset: cursor, Size: ncSize, Kind: ncKind, FillParams: ncParams})
			cursor += ncSize
			noncodeBudget -= ncSize
		}
	}

	for noncodeBudget >= 32 && cursor < totalSize-trailerSize {
		ncKind, ncSize, ncParams := e.pickNonCodeSection(r, noncodeBudget)
		if ncSize > noncodeBudget {
			ncSize = noncodeBudget
		}
		if remaining := totalSize - trailerSize - cursor; ncSize > remaining {
			ncSize = remaining
		}
		if ncSize < 16 {
			break
		}
		sections = append(sections, Spec{Offset: cursor, Size: ncSize, Kind: ncKind, FillParams: ncParams})
		cursor += ncSize
		noncodeBudget -= ncSize
	}

	if gap := totalSize - trailerSize - cursor; gap > 0 {
		sections = append(sections, Spec{
			Offset:     cursor,
			Size:       gap,
			Kind:       Padding,
			FillParams: map[string]any{"pattern": "0xFF", "fill_byte": 0xFF},
		})
		cursor += gap
	}

	if trailerSize > 0 {
		sections = append(sections, Spec{
			Offset:     cursor,
			Size:       trailerSize,
			Kind:       Trailer,
			FillParams: map[string]any{"trailer_type": trailerType.String()},
		})
	}

	return Image{
		ImageID:        fmt.Sprintf("fw_%d_%06d", e.config.Seed, seq),
		TotalSize:      totalSize,
		PrimaryISA:     primaryISA,
		HeaderType:     headerType,
		TrailerType:    trailerType,
		Sections:       sections,
		AllISAFamilies: allFamilies,
		Seed:           e.config.Seed + int64(seq),
	}
}

// GenerateBatch produces count image layouts with per-family quotas (phase
// one), tops up any under-represented ISA combination to at least
// config.MinImagesPerCombo images (phase two), then deterministically
// shuffles the result so families interleave in the output order.
func (e *Engine) GenerateBatch(count int) []Image {
	families := make([]string, len(e.familyWeights))
	for i, fw := range e.familyWeights {
		families[i] = fw.Value
	}
	numFamilies := len(families)
	minPerCombo := e.config.MinImagesPerCombo

	basePer := count / numFamilies
	if basePer < 1 {
		basePer = 1
	}
	quotas := make(map[string]int, numFamilies)
	for _, fam := range families {
		quotas[fam] = basePer
	}
	allocated := basePer * numFamilies

	remainder := count - allocated
	if remainder > 0 {
		totalWeight := 0.0
		for _, fw := range e.familyWeights {
			totalWeight += fw.Weight
		}
		for _, fw := range e.familyWeights {
			extra := int(float64(remainder) * fw.Weight / totalWeight)
			quotas[fw.Value] += extra
			allocated += extra
		}
		leftover := count - allocated
		sortedFams := append([]rng.WeightedOption[string](nil), e.familyWeights...)
		sort.SliceStable(sortedFams, func(i, j int) bool { return sortedFams[i].Weight > sortedFams[j].Weight })
		for i := 0; i < leftover; i++ {
			quotas[sortedFams[i%len(sortedFams)].Value]++
		}
	}

	var layouts []Image
	seq := 0
	for _, fam := range families {
		for i := 0; i < quotas[fam]; i++ {
			r := rng.New(e.config.Seed + int64(seq))
			layouts = append(layouts, e.GenerateImage(r, seq, Options{PrimaryISA: fam}))
			seq++
		}
	}

	comboCounts := map[string]int{}
	comboPrimary := map[string]string{}
	for _, img := range layouts {
		label := img.ISALabel()
		comboCounts[label]++
		if _, ok := comboPrimary[label]; !ok {
			comboPrimary[label] = img.PrimaryISA
		}
	}

	labels := make([]string, 0, len(comboCounts))
	for label := range comboCounts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		needed := minPerCombo - comboCounts[label]
		if needed <= 0 {
			continue
		}
		primary := comboPrimary[label]
		var secondaries []string
		for _, f := range splitLabel(label) {
			if f != primary {
				secondaries = append(secondaries, f)
			}
		}
		for i := 0; i < needed; i++ {
			r := rng.New(e.config.Seed + int64(seq))
			layouts = append(layouts, e.GenerateImage(r, seq, Options{
				PrimaryISA:          primary,
				ForceSecondaries:    secondaries,
				ForceSecondariesSet: true,
			}))
			seq++
		}
	}

	shuffleRand := rng.New(e.config.Seed)
	rng.Shuffle(shuffleRand, layouts)

	return layouts
}

func splitLabel(label string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(label); i++ {
		if i == len(label) || label[i] == '+' {
			out = append(out, label[start:i])
			start = i + 1
		}
	}
	return out
}
