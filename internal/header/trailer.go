package header

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"

	"github.com/tjfoc/gmsm/sm3"

	"github.com/armgen/synthfw/internal/rng"
)

// TrailerKind identifies a trailer generator, closed the same way Kind is.
type TrailerKind int

const (
	TrailerCRC32 TrailerKind = iota
	TrailerMD5
	TrailerSHA256
	TrailerNone
	numTrailerKinds
)

var trailerKindNames = [numTrailerKinds]string{
	TrailerCRC32:  "crc32",
	TrailerMD5:    "md5",
	TrailerSHA256: "sha256",
	TrailerNone:   "none",
}

func (k TrailerKind) String() string {
	if k < 0 || int(k) >= len(trailerKindNames) {
		return "unknown"
	}
	return trailerKindNames[k]
}

// ParseTrailerKind resolves a trailer type name to its TrailerKind.
func ParseTrailerKind(name string) (TrailerKind, bool) {
	for k, n := range trailerKindNames {
		if n == name {
			return TrailerKind(k), true
		}
	}
	return 0, false
}

// TrailerWeights holds the selection weight of each trailer kind: roughly
// 40% of images get a CRC32 trailer, 30% none, 20% MD5, 10% SHA-256.
var TrailerWeights = []rng.WeightedOption[TrailerKind]{
	{Value: TrailerCRC32, Weight: 40.0},
	{Value: TrailerMD5, Weight: 20.0},
	{Value: TrailerSHA256, Weight: 10.0},
	{Value: TrailerNone, Weight: 30.0},
}

// TrailerResult is the output of a trailer generator.
type TrailerResult struct {
	Data     []byte
	Metadata map[string]any
}

type trailerFunc func(imageData []byte) TrailerResult

var trailerRegistry [numTrailerKinds]trailerFunc

func init() {
	trailerRegistry[TrailerCRC32] = genTrailerCRC32
	trailerRegistry[TrailerMD5] = genTrailerMD5
	trailerRegistry[TrailerSHA256] = genTrailerSHA256
	trailerRegistry[TrailerNone] = genTrailerNone
}

// GenerateTrailer runs the registered generator for kind over imageData,
// which must be exactly the prefix of the image preceding the trailer.
func GenerateTrailer(kind TrailerKind, imageData []byte) (TrailerResult, error) {
	if kind < 0 || int(kind) >= len(trailerRegistry) || trailerRegistry[kind] == nil {
		return TrailerResult{}, fmt.Errorf("header: unknown trailer kind %v", kind)
	}
	return trailerRegistry[kind](imageData), nil
}

func genTrailerCRC32(imageData []byte) TrailerResult {
	crc := crc32.ChecksumIEEE(imageData)
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, crc)
	return TrailerResult{
		Data:     data,
		Metadata: map[string]any{"checksum_type": "crc32", "value": fmt.Sprintf("%08x", crc)},
	}
}

func genTrailerMD5(imageData []byte) TrailerResult {
	sum := md5.Sum(imageData)
	return TrailerResult{
		Data:     sum[:],
		Metadata: map[string]any{"checksum_type": "md5", "value": hex.EncodeToString(sum[:])},
	}
}

func genTrailerSHA256(imageData []byte) TrailerResult {
	sum := sha256.Sum256(imageData)
	return TrailerResult{
		Data:     sum[:],
		Metadata: map[string]any{"checksum_type": "sha256", "value": hex.EncodeToString(sum[:])},
	}
}

func genTrailerNone([]byte) TrailerResult {
	return TrailerResult{Data: nil, Metadata: map[string]any{"checksum_type": "none"}}
}

// TrailerSize reports the byte length a trailer kind occupies, without
// running its generator. The layout engine needs this before any image
// bytes exist, to budget the final section.
func TrailerSize(kind TrailerKind) int {
	switch kind {
	case TrailerCRC32:
		return 4
	case TrailerMD5:
		return 16
	case TrailerSHA256:
		return 32
	default:
		return 0
	}
}

// SM3Digest computes a supplemental SM3 digest of imageData for the JSON
// sidecar's provenance metadata. It never participates in the trailer
// registry and never changes image bytes or section layout — it is purely
// an extra integrity fingerprint alongside the declared trailer.
func SM3Digest(imageData []byte) string {
	h := sm3.New()
	h.Write(imageData)
	return hex.EncodeToString(h.Sum(nil))
}
