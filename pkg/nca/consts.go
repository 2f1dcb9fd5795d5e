// Package nca implements the archive-processing engine: header
// decrypt/encrypt, key-area decrypt/encrypt, per-section random-access
// ciphertext I/O, hash-tree patch generation, and patch-apply buffer
// merge. Storage enumeration, ticket lookup, application-metadata
// scraping, UI, and file I/O destinations are external collaborators
// (see pkg/blockreader and pkg/keys).
package nca

const (
	// HeaderLength is the size, in bytes, of the fixed archive header:
	// the main signature, a reserved second signature slot, the signed
	// main fields (magic through rights id), the four fs_info entries,
	// the four section-header hash slots, and the key area.
	HeaderLength = 0x400

	// SectionHeaderLength is the size, in bytes, of one section header.
	SectionHeaderLength = 0x200

	// MagicOffset is the byte offset of the 4-byte magic field within the
	// decrypted header, and the start of the RSA-PSS signed region.
	MagicOffset = 0x200

	// SignatureAreaSize is the number of bytes, starting at MagicOffset,
	// covered by the main signature.
	SignatureAreaSize = HeaderLength - MagicOffset

	// FsEntryLength is the size, in bytes, of one fs_info entry in the
	// archive header.
	FsEntryLength = 0x30

	// KeyCount is the number of 16-byte key-area slots.
	KeyCount = 4

	// KeyCountV0 is the number of key-area slots a V0 archive's key area
	// actually uses (XTS key-1/key-2 only).
	KeyCountV0 = 2

	// SectionCount is the fixed number of section slots per archive.
	SectionCount = 4

	// SectorMultiplier converts a sector count to a byte offset.
	SectorMultiplier = 0x200

	// SHA256Size is the size, in bytes, of a SHA-256 digest.
	SHA256Size = 0x20

	// MaxFlatSHA256Regions is the maximum number of hash regions a
	// flat-SHA256 hash-tree descriptor carries.
	MaxFlatSHA256Regions = 5

	// IntegrityLevels is the fixed number of levels in a hierarchical
	// integrity hash tree (5 hash layers + 1 data layer).
	IntegrityLevels = 6

	// StagingBufferSize is the size of the process-wide staging buffer
	// used by the slow read/write paths.
	StagingBufferSize = 0x800000

	// BucketTableMagic is the magic value of a sparse-layer bucket table.
	BucketTableMagic = "BKTR"
)

// Magic identifies the archive format version.
type Magic [4]byte

var (
	MagicNCA0 = Magic{'N', 'C', 'A', '0'}
	MagicNCA2 = Magic{'N', 'C', 'A', '2'}
	MagicNCA3 = Magic{'N', 'C', 'A', '3'}
)

// bucketTableMagic is BucketTableMagic decoded into the fixed-size array
// rawBucketHeader.Magic compares against.
var bucketTableMagic = [4]byte{'B', 'K', 'T', 'R'}

// FormatVersion is the archive's on-disk layout generation.
type FormatVersion int

const (
	FormatUnknown FormatVersion = iota
	FormatV0
	FormatV2
	FormatV3
)

func (v FormatVersion) String() string {
	switch v {
	case FormatV0:
		return "V0"
	case FormatV2:
		return "V2"
	case FormatV3:
		return "V3"
	default:
		return "unknown"
	}
}

func formatFromMagic(m Magic) FormatVersion {
	switch m {
	case MagicNCA0:
		return FormatV0
	case MagicNCA2:
		return FormatV2
	case MagicNCA3:
		return FormatV3
	default:
		return FormatUnknown
	}
}

// publicExponentBytes is the archive's fixed RSA public exponent, as
// specified in the format description (mirrored in ncacrypto.PublicExponent).
var publicExponentBytes = [3]byte{0x01, 0x00, 0x01}

// v0PlaintextKeyAreaMarker is the SHA-256 of a key area that was never
// encrypted in the first place (V0 archives predate key-area encryption
// in some builds).
var v0PlaintextKeyAreaMarker = [32]byte{
	0x9A, 0xBB, 0xD2, 0x11, 0x86, 0x00, 0x21, 0x9D, 0x7A, 0xDC, 0x5B, 0x43, 0x95, 0xF8, 0x4E, 0xFD,
	0xFF, 0x6B, 0x25, 0xEF, 0x9F, 0x96, 0x85, 0x28, 0x18, 0x9E, 0x76, 0xB0, 0x92, 0xF0, 0x6A, 0xCB,
}

// SectionType is the derived filesystem type of a section.
type SectionType int

const (
	SectionInvalid SectionType = iota
	SectionPartitionFS
	SectionRomFS
	SectionPatchRomFS
	SectionV0RomFS
)

func (t SectionType) String() string {
	switch t {
	case SectionPartitionFS:
		return "PartitionFS"
	case SectionRomFS:
		return "RomFS"
	case SectionPatchRomFS:
		return "PatchRomFS"
	case SectionV0RomFS:
		return "V0-RomFS"
	default:
		return "Invalid"
	}
}

// EncryptionKind is the per-section symmetric cipher tag.
type EncryptionKind int

const (
	EncryptionUnknown EncryptionKind = iota
	EncryptionNone
	EncryptionXTS
	EncryptionCTR
	EncryptionCTREx
)

func (k EncryptionKind) String() string {
	switch k {
	case EncryptionNone:
		return "None"
	case EncryptionXTS:
		return "XTS"
	case EncryptionCTR:
		return "CTR"
	case EncryptionCTREx:
		return "CTR-Ex"
	default:
		return "Unknown"
	}
}

// HashTreeKind distinguishes the two on-disk hash-tree descriptor shapes.
type HashTreeKind int

const (
	HashTreeFlatSHA256 HashTreeKind = iota
	HashTreeIntegrity
)

// fsTypeByte / hashTypeByte / cryptoTypeByte are the raw on-disk bytes in
// a section header, decoded into the enums above by deriveSectionType and
// deriveEncryptionKind.
type fsTypeByte uint8

const (
	fsTypePartitionFS fsTypeByte = 0
	fsTypeRomFS       fsTypeByte = 1
)

type hashTypeByte uint8

const (
	hashTypeFlatSHA256 hashTypeByte = 0
	hashTypeIntegrity  hashTypeByte = 1
)

type cryptoTypeByte uint8

const (
	cryptoTypeNone  cryptoTypeByte = 0
	cryptoTypeXTS   cryptoTypeByte = 1
	cryptoTypeCTR   cryptoTypeByte = 2
	cryptoTypeCTREx cryptoTypeByte = 3
)
