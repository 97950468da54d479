// Package header generates the ISA-specific vector tables, bootloader
// headers, and checksum trailers placed around synthetic firmware images.
//
// Dispatch is a closed enum plus an array of generator functions rather than
// a string-keyed map: every Kind must have a registry entry, and the
// exhaustiveness test in header_test.go fails loudly if one is ever added
// to the enum without a matching generator.
package header

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/armgen/synthfw/internal/isafamily"
	"github.com/armgen/synthfw/internal/rng"
)

// Kind identifies a header generator. The zero value is
// VectorTableCortexM; ParseKind resolves a Kind from its name.
type Kind int

const (
	VectorTableCortexM Kind = iota
	VectorTableARM
	BootVectorMIPS
	AVRVectorTable
	MSP430VectorTable
	UBoot
	AndroidBoot
	TPLink
	MediaTek
	QualcommMBN
	BIOSBoot
	UEFIStub
	OpenSBIStub
	Bare
	numKinds
)

var kindNames = [numKinds]string{
	VectorTableCortexM: "vector_table_cortexm",
	VectorTableARM:     "vector_table_arm",
	BootVectorMIPS:     "boot_vector_mips",
	AVRVectorTable:     "avr_vector_table",
	MSP430VectorTable:  "msp430_vector_table",
	UBoot:              "uboot",
	AndroidBoot:        "android_boot",
	TPLink:             "tplink",
	MediaTek:           "mediatek",
	QualcommMBN:        "qualcomm_mbn",
	BIOSBoot:           "bios_boot",
	UEFIStub:           "uefi_stub",
	OpenSBIStub:        "opensbi_stub",
	Bare:               "bare",
}

// String returns the header type's canonical name, matching the names used
// in isafamily.Family.HeaderTypes and in JSON sidecars.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ParseKind resolves a header type name to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// Params carries the per-image context a generator may need: none are
// required by every generator, all are optional hints.
type Params struct {
	BaseAddr   uint64
	TotalSize  int
	FamilyName string
}

// Result is the output of a header generator.
type Result struct {
	Data             []byte
	EntryPointOffset int
	Metadata         map[string]any
}

type generatorFunc func(endianness isafamily.Endianness, r *rng.Rand, p Params) Result

var registry [numKinds]generatorFunc

func init() {
	registry[VectorTableCortexM] = genVectorTableCortexM
	registry[VectorTableARM] = genVectorTableARM
	registry[BootVectorMIPS] = genBootVectorMIPS
	registry[AVRVectorTable] = genAVRVectorTable
	registry[MSP430VectorTable] = genMSP430VectorTable
	registry[UBoot] = genUBoot
	registry[AndroidBoot] = genAndroidBoot
	registry[TPLink] = genTPLink
	registry[MediaTek] = genMediaTek
	registry[QualcommMBN] = genQualcommMBN
	registry[BIOSBoot] = genBIOSBoot
	registry[UEFIStub] = genUEFIStub
	registry[OpenSBIStub] = genOpenSBIStub
	registry[Bare] = genBare
}

// Generate runs the registered generator for kind.
func Generate(kind Kind, endianness isafamily.Endianness, r *rng.Rand, p Params) (Result, error) {
	if kind < 0 || int(kind) >= len(registry) || registry[kind] == nil {
		return Result{}, fmt.Errorf("header: unknown kind %v", kind)
	}
	return registry[kind](endianness, r, p), nil
}

func putU32(b []byte, off int, v uint32, big bool) {
	if big {
		binary.BigEndian.PutUint32(b[off:off+4], v)
	} else {
		binary.LittleEndian.PutUint32(b[off:off+4], v)
	}
}

func genVectorTableCortexM(_ isafamily.Endianness, r *rng.Rand, p Params) Result {
	baseAddr := p.BaseAddr
	if baseAddr == 0 {
		baseAddr = 0x08000000
	}
	numVectors := rng.ChoiceInt(r, []int{16, 32, 48, 64})

	vectors := make([]uint32, numVectors)
	vectors[0] = rng.ChoiceInt(r, []uint32{0x20005000, 0x20010000, 0x20020000, 0x20040000})

	resetAddr := (uint32(baseAddr) + uint32(numVectors)*4) | 1
	vectors[1] = resetAddr

	for i := 2; i < numVectors; i++ {
		handler := uint32(baseAddr) + uint32(numVectors)*4 + uint32(r.IntRange(0, 0x1000))
		handler |= 1
		vectors[i] = handler
	}

	data := make([]byte, numVectors*4)
	for i, v := range vectors {
		binary.LittleEndian.PutUint32(data[i*4:i*4+4], v)
	}

	return Result{
		Data:             data,
		EntryPointOffset: len(data),
		Metadata:         map[string]any{"header_type": "vector_table_cortexm", "num_vectors": numVectors},
	}
}

func genVectorTableARM(endianness isafamily.Endianness, r *rng.Rand, _ Params) Result {
	big := endianness == isafamily.Big
	data := make([]byte, 32)
	for i := 0; i < 8; i++ {
		targetOffset := 32 + r.IntRange(0, 0x800)
		branchOffset := (targetOffset - i*4 - 8) >> 2
		branchOffset &= 0x00FFFFFF
		instr := uint32(0xEA000000) | uint32(branchOffset)
		putU32(data, i*4, instr, big)
	}
	return Result{
		Data:             data,
		EntryPointOffset: len(data),
		Metadata:         map[string]any{"header_type": "vector_table_arm"},
	}
}

func genBootVectorMIPS(endianness isafamily.Endianness, _ *rng.Rand, p Params) Result {
	baseAddr := p.BaseAddr
	if baseAddr == 0 {
		baseAddr = 0xBFC00000
	}
	big := endianness == isafamily.Big

	target := uint32(baseAddr) + 32
	upper := (target >> 16) & 0xFFFF
	lower := target & 0xFFFF

	instrs := []uint32{
		0x3C080000 | upper,
		0x35080000 | lower,
		0x01000008,
		0x00000000,
		0x00000000,
		0x00000000,
		0x00000000,
		0x00000000,
	}
	data := make([]byte, len(instrs)*4)
	for i, ins := range instrs {
		putU32(data, i*4, ins, big)
	}
	return Result{
		Data:             data,
		EntryPointOffset: len(data),
		Metadata:         map[string]any{"header_type": "boot_vector_mips"},
	}
}

func genAVRVectorTable(_ isafamily.Endianness, r *rng.Rand, _ Params) Result {
	useJmp := r.Bool()
	numVectors := rng.ChoiceInt(r, []int{26, 35, 57})

	var data []byte
	if useJmp {
		for i := 0; i < numVectors; i++ {
			target := numVectors*4 + r.IntRange(0, 0x100)
			lo := uint16(target & 0xFFFF)
			hi := uint16((target >> 16) & 0x3F)
			word1 := uint16(0x940C) | ((hi & 0x3E) << 3) | (hi & 0x01)
			buf := make([]byte, 4)
			binary.LittleEndian.PutUint16(buf[0:2], word1)
			binary.LittleEndian.PutUint16(buf[2:4], lo)
			data = append(data, buf...)
		}
	} else {
		for i := 0; i < numVectors; i++ {
			targetOffset := (numVectors - i - 1 + r.IntRange(0, 0x20)) & 0x0FFF
			rjmp := uint16(0xC000) | uint16(targetOffset)
			buf := make([]byte, 2)
			binary.LittleEndian.PutUint16(buf, rjmp)
			data = append(data, buf...)
		}
	}
	return Result{
		Data:             data,
		EntryPointOffset: len(data),
		Metadata:         map[string]any{"header_type": "avr_vector_table", "num_vectors": numVectors, "use_jmp": useJmp},
	}
}

func genMSP430VectorTable(_ isafamily.Endianness, r *rng.Rand, _ Params) Result {
	codeBase := rng.ChoiceInt(r, []uint16{0xC000, 0xC200, 0xE000, 0xF000})
	data := make([]byte, 32)
	for i := 0; i < 16; i++ {
		addr := codeBase + uint16(r.IntRange(0, 0x1000))
		addr &= 0xFFFE
		binary.LittleEndian.PutUint16(data[i*2:i*2+2], addr)
	}
	return Result{
		Data:             data,
		EntryPointOffset: 0,
		Metadata:         map[string]any{"header_type": "msp430_vector_table", "code_base": codeBase},
	}
}

func genUBoot(_ isafamily.Endianness, r *rng.Rand, p Params) Result {
	imageSize := p.TotalSize
	if imageSize == 0 {
		imageSize = 65536
	}
	dataSize := imageSize - 64
	if dataSize < 0 {
		dataSize = 0
	}

	loadAddr := p.BaseAddr
	if loadAddr == 0 {
		loadAddr = 0x80008000
	}
	ep := uint32(loadAddr)

	osType := rng.ChoiceInt(r, []byte{5, 17, 20})
	archMap := map[string]byte{
		"arm32": 2, "thumb": 2, "aarch64": 22,
		"x86": 6, "x86_64": 6,
		"mips32_be": 5, "mips32_le": 5, "mips64_be": 5, "mips64_le": 5,
		"ppc32": 7, "ppc64_be": 7, "ppc64_le": 7,
		"riscv32": 27, "riscv64": 27,
	}
	family := p.FamilyName
	if family == "" {
		family = "arm32"
	}
	arch := archMap[family]
	imgType := rng.ChoiceInt(r, []byte{2, 5})
	comp := rng.ChoiceInt(r, []byte{0, 1, 2, 3})

	names := [][]byte{
		[]byte("Linux Kernel Image"),
		[]byte("U-Boot Firmware"),
		[]byte("Ramdisk Image"),
		[]byte("FIT Image"),
		[]byte("OpenWrt firmware"),
	}
	name := rng.ChoiceInt(r, names)
	namePadded := make([]byte, 32)
	copy(namePadded, name)

	header := make([]byte, 64)
	binary.BigEndian.PutUint32(header[0:4], 0x27051956) // magic
	// header[4:8] CRC placeholder, filled below
	timestamp := uint32(1700000000) - uint32(r.IntRange(0, 365*24*3600))
	binary.BigEndian.PutUint32(header[8:12], timestamp)
	binary.BigEndian.PutUint32(header[12:16], uint32(dataSize))
	binary.BigEndian.PutUint32(header[16:20], uint32(loadAddr))
	binary.BigEndian.PutUint32(header[20:24], ep)
	// header[24:28] data CRC placeholder, left zero
	header[28] = osType
	header[29] = arch
	header[30] = imgType
	header[31] = comp
	copy(header[32:64], namePadded)

	crc := crc32.ChecksumIEEE(header)
	binary.BigEndian.PutUint32(header[4:8], crc)

	return Result{
		Data:             header,
		EntryPointOffset: 64,
		Metadata:         map[string]any{"header_type": "uboot", "arch": arch, "comp": comp},
	}
}

func genAndroidBoot(_ isafamily.Endianness, r *rng.Rand, p Params) Result {
	imageSize := p.TotalSize
	if imageSize == 0 {
		imageSize = 65536
	}
	pageSize := 2048

	kernelSize := imageSize - 2048
	if kernelSize < 0 {
		kernelSize = 0
	}

	cmdlines := [][]byte{
		[]byte("console=ttyMSM0,115200n8 androidboot.console=ttyMSM0"),
		[]byte("console=ttyS0,115200 root=/dev/ram0 androidboot.hardware=qcom"),
		[]byte("console=ttyHSL0,115200,n8 androidboot.console=ttyHSL0"),
	}
	cmdline := rng.ChoiceInt(r, cmdlines)
	cmdlinePadded := make([]byte, 512)
	copy(cmdlinePadded, cmdline)

	sha := r.Bytes(32)
	headerVersion := rng.ChoiceInt(r, []uint32{0, 1})

	header := make([]byte, pageSize)
	copy(header[0:8], "ANDROID!")
	binary.LittleEndian.PutUint32(header[8:12], uint32(kernelSize))
	binary.LittleEndian.PutUint32(header[12:16], 0x10008000)
	binary.LittleEndian.PutUint32(header[16:20], 0) // ramdisk_size
	binary.LittleEndian.PutUint32(header[20:24], 0x11000000)
	binary.LittleEndian.PutUint32(header[24:28], 0) // second_size
	binary.LittleEndian.PutUint32(header[28:32], 0x10F00000)
	binary.LittleEndian.PutUint32(header[32:36], 0x10000100)
	binary.LittleEndian.PutUint32(header[36:40], uint32(pageSize))
	binary.LittleEndian.PutUint32(header[40:44], headerVersion)
	binary.LittleEndian.PutUint32(header[44:48], 0) // os_version
	copy(header[48:560], cmdlinePadded)
	copy(header[560:592], sha)
	// header[592:1616] extra cmdline, left zero; header already zero-padded to pageSize.

	return Result{
		Data:             header,
		EntryPointOffset: pageSize,
		Metadata:         map[string]any{"header_type": "android_boot", "page_size": pageSize},
	}
}

func genTPLink(_ isafamily.Endianness, r *rng.Rand, p Params) Result {
	imageSize := p.TotalSize
	if imageSize == 0 {
		imageSize = 65536
	}
	header := make([]byte, 512)

	vendors := [][]byte{[]byte("TP-LINK Technologies"), []byte("TP-LINK"), []byte("Archer")}
	vendor := rng.ChoiceInt(r, vendors)
	copy(header[0:32], vendor)

	ver := fmt.Sprintf("ver. %d.%d.%d", r.IntRange(1, 5), r.IntRange(0, 20), r.IntRange(0, 9))
	copy(header[32:64], ver)

	hwIDs := []uint32{0x00000001, 0x07500002, 0x09700001, 0x0C500001}
	binary.BigEndian.PutUint32(header[64:68], rng.ChoiceInt(r, hwIDs))
	binary.BigEndian.PutUint32(header[68:72], uint32(imageSize))
	copy(header[76:92], r.Bytes(16))

	return Result{
		Data:             header,
		EntryPointOffset: 512,
		Metadata:         map[string]any{"header_type": "tplink"},
	}
}

func genMediaTek(_ isafamily.Endianness, r *rng.Rand, p Params) Result {
	size := rng.ChoiceInt(r, []int{512, 1024, 2048})
	header := make([]byte, size)

	magic := rng.ChoiceInt(r, [][]byte{[]byte("BRLYT"), []byte("BLOADER")})
	copy(header[0:], magic)

	binary.LittleEndian.PutUint32(header[8:12], uint32(r.IntRange(1, 4)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(size))

	totalSize := p.TotalSize
	if totalSize == 0 {
		totalSize = 65536
	}
	bootLen := totalSize - size
	if bootLen < 0 {
		bootLen = 0
	}
	binary.LittleEndian.PutUint32(header[16:20], uint32(bootLen))

	devInfos := [][]byte{[]byte("MT7621"), []byte("MT7628"), []byte("MT6753"), []byte("MT8173")}
	devInfo := rng.ChoiceInt(r, devInfos)
	copy(header[32:64], devInfo)

	return Result{
		Data:             header,
		EntryPointOffset: size,
		Metadata:         map[string]any{"header_type": "mediatek", "size": size},
	}
}

func genQualcommMBN(_ isafamily.Endianness, r *rng.Rand, p Params) Result {
	imageSize := p.TotalSize
	if imageSize == 0 {
		imageSize = 65536
	}
	baseAddr := p.BaseAddr
	if baseAddr == 0 {
		baseAddr = 0x80000000
	}

	imageID := rng.ChoiceInt(r, []uint32{0x03, 0x05, 0x07, 0x0D, 0x15})
	codeSize := imageSize - 40
	if codeSize < 0 {
		codeSize = 0
	}

	data := make([]byte, 40)
	binary.LittleEndian.PutUint32(data[0:4], imageID)
	binary.LittleEndian.PutUint32(data[4:8], 3) // header_vsn
	binary.LittleEndian.PutUint32(data[8:12], 40)
	binary.LittleEndian.PutUint32(data[12:16], uint32(baseAddr))
	binary.LittleEndian.PutUint32(data[16:20], uint32(codeSize))
	// sig_ptr, sig_size, cert_chain_ptr, cert_chain_size left zero
	binary.LittleEndian.PutUint32(data[36:40], 0x00000005) // magic

	return Result{
		Data:             data,
		EntryPointOffset: 40,
		Metadata:         map[string]any{"header_type": "qualcomm_mbn", "image_id": imageID},
	}
}

func genBIOSBoot(_ isafamily.Endianness, r *rng.Rand, _ Params) Result {
	header := make([]byte, 512)

	jmpOffset := r.IntRange(0x3C, 0x58)
	header[0] = 0xEB
	header[1] = byte(jmpOffset)
	header[2] = 0x90

	oemNames := [][]byte{[]byte("MSWIN4.1"), []byte("mkdosfs "), []byte("MSDOS5.0"), []byte("IBM  3.3")}
	copy(header[3:11], rng.ChoiceInt(r, oemNames))

	binary.LittleEndian.PutUint16(header[11:13], 512)
	header[13] = byte(rng.ChoiceInt(r, []int{1, 2, 4, 8}))
	binary.LittleEndian.PutUint16(header[14:16], uint16(rng.ChoiceInt(r, []int{1, 32})))
	header[16] = 2
	binary.LittleEndian.PutUint16(header[17:19], uint16(rng.ChoiceInt(r, []int{0, 512})))
	binary.LittleEndian.PutUint16(header[19:21], 0)
	header[21] = 0xF8

	header[510] = 0x55
	header[511] = 0xAA

	return Result{
		Data:             header,
		EntryPointOffset: jmpOffset + 2,
		Metadata:         map[string]any{"header_type": "bios_boot"},
	}
}

func genUEFIStub(_ isafamily.Endianness, r *rng.Rand, p Params) Result {
	size := rng.ChoiceInt(r, []int{512, 768, 1024})
	header := make([]byte, size)

	copy(header[0:2], "MZ")
	peOffset := 0x80
	binary.LittleEndian.PutUint32(header[0x3C:0x40], uint32(peOffset))
	copy(header[peOffset:peOffset+4], []byte{'P', 'E', 0, 0})

	coffOffset := peOffset + 4
	machineMap := map[string]uint16{
		"x86": 0x014C, "x86_64": 0x8664, "aarch64": 0xAA64,
		"arm32": 0x01C2, "riscv32": 0x5032, "riscv64": 0x5064,
	}
	family := p.FamilyName
	if family == "" {
		family = "x86_64"
	}
	machine, ok := machineMap[family]
	if !ok {
		machine = 0x8664
	}
	binary.LittleEndian.PutUint16(header[coffOffset:coffOffset+2], machine)
	binary.LittleEndian.PutUint16(header[coffOffset+2:coffOffset+4], 1)
	binary.LittleEndian.PutUint32(header[coffOffset+4:coffOffset+8], 1700000000)
	binary.LittleEndian.PutUint16(header[coffOffset+16:coffOffset+18], 0xF0)
	binary.LittleEndian.PutUint16(header[coffOffset+18:coffOffset+20], 0x0022)

	return Result{
		Data:             header,
		EntryPointOffset: size,
		Metadata:         map[string]any{"header_type": "uefi_stub", "machine": machine},
	}
}

func genOpenSBIStub(_ isafamily.Endianness, _ *rng.Rand, p Params) Result {
	header := make([]byte, 48)

	jumpTarget := uint32(48)
	imm20 := (jumpTarget >> 20) & 0x1
	imm10_1 := (jumpTarget >> 1) & 0x3FF
	imm11 := (jumpTarget >> 11) & 0x1
	imm19_12 := (jumpTarget >> 12) & 0xFF
	jal := (imm20 << 31) | (imm10_1 << 21) | (imm11 << 20) | (imm19_12 << 12) | 0x6F
	binary.LittleEndian.PutUint32(header[0:4], jal)

	binary.LittleEndian.PutUint64(header[4:12], 0x4F53424900000002)

	binary.LittleEndian.PutUint32(header[12:16], 48)
	totalSize := p.TotalSize
	if totalSize == 0 {
		totalSize = 65536
	}
	binary.LittleEndian.PutUint32(header[16:20], uint32(totalSize))

	return Result{
		Data:             header,
		EntryPointOffset: 48,
		Metadata:         map[string]any{"header_type": "opensbi_stub"},
	}
}

func genBare(_ isafamily.Endianness, _ *rng.Rand, _ Params) Result {
	return Result{
		Data:             nil,
		EntryPointOffset: 0,
		Metadata:         map[string]any{"header_type": "bare"},
	}
}
