// Package isafamily holds the static database that groups cross-compiler
// target triples into firmware-relevant ISA families, plus the multi-ISA
// co-location affinity table the layout engine draws on.
package isafamily

// Endianness of an ISA family's multi-byte header fields and registers.
type Endianness string

const (
	Little Endianness = "little"
	Big    Endianness = "big"
)

// Family describes one ISA family: a group of target triples that share an
// instruction encoding for the purposes of ML-based ISA detection.
type Family struct {
	Name            string
	Endianness      Endianness
	PointerWidth    int // 16, 32, or 64
	Triples         []string
	HeaderTypes     []string // names resolved via header.ParseKind
	TypicalBaseAddr uint64
	Alignment       int
}

// Families is the static, load-once-at-startup database of ISA families.
var Families = map[string]Family{
	"arm32": {
		Name:            "arm32",
		Endianness:      Little,
		PointerWidth:    32,
		Triples:         []string{"arm-unknown-linux-gnueabi", "arm-unknown-linux-gnueabihf", "armv7-unknown-linux-gnueabihf"},
		HeaderTypes:     []string{"vector_table_arm", "uboot", "android_boot", "bare"},
		TypicalBaseAddr: 0x00000000,
		Alignment:       4,
	},
	"thumb": {
		Name:            "thumb",
		Endianness:      Little,
		PointerWidth:    32,
		Triples:         []string{"thumbv7m-none-eabi"},
		HeaderTypes:     []string{"vector_table_cortexm", "bare"},
		TypicalBaseAddr: 0x08000000,
		Alignment:       2,
	},
	"aarch64": {
		Name:            "aarch64",
		Endianness:      Little,
		PointerWidth:    64,
		Triples:         []string{"aarch64-unknown-linux-gnu", "aarch64-unknown-linux-musl"},
		HeaderTypes:     []string{"uboot", "android_boot", "bare"},
		TypicalBaseAddr: 0x40000000,
		Alignment:       4,
	},
	"x86": {
		Name:            "x86",
		Endianness:      Little,
		PointerWidth:    32,
		Triples:         []string{"i686-unknown-linux-gnu"},
		HeaderTypes:     []string{"bios_boot", "uefi_stub", "bare"},
		TypicalBaseAddr: 0x00007C00,
		Alignment:       1,
	},
	"x86_64": {
		Name:            "x86_64",
		Endianness:      Little,
		PointerWidth:    64,
		Triples:         []string{"x86_64-unknown-linux-gnu", "x86_64-unknown-linux-musl"},
		HeaderTypes:     []string{"uefi_stub", "bios_boot", "uboot", "bare"},
		TypicalBaseAddr: 0x00100000,
		Alignment:       1,
	},
	"riscv32": {
		Name:            "riscv32",
		Endianness:      Little,
		PointerWidth:    32,
		Triples:         []string{"riscv32-unknown-linux-gnu", "riscv32-unknown-elf"},
		HeaderTypes:     []string{"opensbi_stub", "uboot", "bare"},
		TypicalBaseAddr: 0x80000000,
		Alignment:       4,
	},
	"riscv64": {
		Name:            "riscv64",
		Endianness:      Little,
		PointerWidth:    64,
		Triples:         []string{"riscv64-unknown-linux-gnu", "riscv64-unknown-elf"},
		HeaderTypes:     []string{"opensbi_stub", "uboot", "bare"},
		TypicalBaseAddr: 0x80000000,
		Alignment:       4,
	},
	"mips32_be": {
		Name:            "mips32_be",
		Endianness:      Big,
		PointerWidth:    32,
		Triples:         []string{"mips-unknown-linux-gnu"},
		HeaderTypes:     []string{"boot_vector_mips", "uboot", "tplink", "bare"},
		TypicalBaseAddr: 0xBFC00000,
		Alignment:       4,
	},
	"mips32_le": {
		Name:            "mips32_le",
		Endianness:      Little,
		PointerWidth:    32,
		Triples:         []string{"mipsel-unknown-linux-gnu"},
		HeaderTypes:     []string{"boot_vector_mips", "uboot", "tplink", "bare"},
		TypicalBaseAddr: 0xBFC00000,
		Alignment:       4,
	},
	"mips64_be": {
		Name:            "mips64_be",
		Endianness:      Big,
		PointerWidth:    64,
		Triples:         []string{"mips64-unknown-linux-gnuabi64"},
		HeaderTypes:     []string{"boot_vector_mips", "uboot", "bare"},
		TypicalBaseAddr: 0xFFFFFFFF80000000,
		Alignment:       4,
	},
	"mips64_le": {
		Name:            "mips64_le",
		Endianness:      Little,
		PointerWidth:    64,
		Triples:         []string{"mips64el-unknown-linux-gnuabi64"},
		HeaderTypes:     []string{"boot_vector_mips", "uboot", "bare"},
		TypicalBaseAddr: 0xFFFFFFFF80000000,
		Alignment:       4,
	},
	"ppc32": {
		Name:            "ppc32",
		Endianness:      Big,
		PointerWidth:    32,
		Triples:         []string{"powerpc-unknown-linux-gnu"},
		HeaderTypes:     []string{"uboot", "bare"},
		TypicalBaseAddr: 0x00000000,
		Alignment:       4,
	},
	"ppc64_be": {
		Name:            "ppc64_be",
		Endianness:      Big,
		PointerWidth:    64,
		Triples:         []string{"powerpc64-unknown-linux-gnu"},
		HeaderTypes:     []string{"uboot", "bare"},
		TypicalBaseAddr: 0x00000000,
		Alignment:       4,
	},
	"ppc64_le": {
		Name:            "ppc64_le",
		Endianness:      Little,
		PointerWidth:    64,
		Triples:         []string{"powerpc64le-unknown-linux-gnu"},
		HeaderTypes:     []string{"uboot", "bare"},
		TypicalBaseAddr: 0x00000000,
		Alignment:       4,
	},
	"sparc32": {
		Name:            "sparc32",
		Endianness:      Big,
		PointerWidth:    32,
		Triples:         []string{"sparc-unknown-linux-gnu"},
		HeaderTypes:     []string{"uboot", "bare"},
		TypicalBaseAddr: 0x00000000,
		Alignment:       4,
	},
	"sparc64": {
		Name:            "sparc64",
		Endianness:      Big,
		PointerWidth:    64,
		Triples:         []string{"sparc64-unknown-linux-gnu"},
		HeaderTypes:     []string{"uboot", "bare"},
		TypicalBaseAddr: 0x00000000,
		Alignment:       4,
	},
	"s390x": {
		Name:            "s390x",
		Endianness:      Big,
		PointerWidth:    64,
		Triples:         []string{"s390x-unknown-linux-gnu"},
		HeaderTypes:     []string{"uboot", "bare"},
		TypicalBaseAddr: 0x00000000,
		Alignment:       4,
	},
	"loongarch64": {
		Name:            "loongarch64",
		Endianness:      Little,
		PointerWidth:    64,
		Triples:         []string{"loongarch64-unknown-linux-gnu"},
		HeaderTypes:     []string{"uboot", "bare"},
		TypicalBaseAddr: 0x9000000000000000,
		Alignment:       4,
	},
	"avr": {
		Name:            "avr",
		Endianness:      Little,
		PointerWidth:    16,
		Triples:         []string{"avr-unknown-unknown"},
		HeaderTypes:     []string{"avr_vector_table", "bare"},
		TypicalBaseAddr: 0x0000,
		Alignment:       2,
	},
	"msp430": {
		Name:            "msp430",
		Endianness:      Little,
		PointerWidth:    16,
		Triples:         []string{"msp430-none-elf"},
		HeaderTypes:     []string{"msp430_vector_table", "bare"},
		TypicalBaseAddr: 0xC000,
		Alignment:       2,
	},
	"hexagon": {
		Name:            "hexagon",
		Endianness:      Little,
		PointerWidth:    32,
		Triples:         []string{"hexagon-unknown-linux-musl"},
		HeaderTypes:     []string{"qualcomm_mbn", "bare"},
		TypicalBaseAddr: 0x00000000,
		Alignment:       4,
	},
}

// ExcludedTriples are never mapped to a family, even if they otherwise
// resemble one: GPU, wasm, BPF, and other non-firmware compilation targets.
var ExcludedTriples = map[string]bool{
	"wasm32-unknown-unknown":    true,
	"wasm32-wasi":               true,
	"nvptx64-nvidia-cuda":       true,
	"amdgcn-amd-amdhsa":         true,
	"bpf-unknown-none":          true,
	"ve-unknown-linux-gnu":      true,
	"lanai-unknown-unknown":     true,
	"xcore-unknown-unknown":     true,
}

// tripleToFamily is the precomputed reverse map: triple -> family name.
var tripleToFamily = func() map[string]string {
	m := make(map[string]string)
	for name, fam := range Families {
		for _, triple := range fam.Triples {
			m[triple] = name
		}
	}
	return m
}()

// Affinity is one plausible multi-ISA co-location pairing.
type Affinity struct {
	Family string
	Weight float64
}

// MultiISAAffinity maps a primary family to the secondary families
// plausibly co-located with it in real firmware, with relative weights.
var MultiISAAffinity = map[string][]Affinity{
	"arm32":     {{"thumb", 3.0}, {"aarch64", 1.0}},
	"thumb":     {{"arm32", 3.0}},
	"aarch64":   {{"arm32", 2.0}, {"thumb", 1.0}},
	"x86_64":    {{"x86", 2.0}, {"arm32", 1.0}},
	"x86":       {{"x86_64", 1.0}},
	"mips32_be": {{"mips32_le", 0.5}},
	"mips32_le": {{"mips32_be", 0.5}},
	"mips64_be": {{"mips32_be", 2.0}},
	"mips64_le": {{"mips32_le", 2.0}},
	"riscv64":   {{"riscv32", 2.0}},
	"riscv32":   {{"riscv64", 1.0}},
	"ppc64_be":  {{"ppc32", 1.0}},
	"ppc64_le":  {{"ppc32", 0.5}},
	"hexagon":   {{"arm32", 2.0}, {"aarch64", 1.0}},
}

// Get returns a family by name and whether it exists.
func Get(name string) (Family, bool) {
	fam, ok := Families[name]
	return fam, ok
}

// ForTriple returns the family name for a target triple, or "" if the
// triple is unknown or excluded.
func ForTriple(triple string) string {
	if ExcludedTriples[triple] {
		return ""
	}
	return tripleToFamily[triple]
}
