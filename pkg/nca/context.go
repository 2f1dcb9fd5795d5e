package nca

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nxdt-go/ncatool/pkg/blockreader"
	"github.com/nxdt-go/ncatool/pkg/keys"
	"github.com/nxdt-go/ncatool/pkg/ncacrypto"
	"github.com/nxdt-go/ncatool/pkg/ncaerr"
)

// StorageKind tags where an archive's bytes physically live. The engine
// itself is storage-agnostic (the block reader already folds in any
// raw-device base offset); the tag only affects ticket lookup, which
// treats removable-media titlekeys differently from installed ones.
type StorageKind int

const (
	StorageUnknown StorageKind = iota
	StorageBuiltIn
	StorageRemovable
	StorageGameCard
)

func (s StorageKind) isFromRemovable() bool {
	return s == StorageRemovable || s == StorageGameCard
}

// Context is one archive context: the decrypted/encrypted header pair, the
// decrypted key area, and up to four section contexts. It is built once by
// NewContext and is immutable with respect to layout thereafter, except
// that the header codec may mark it dirty (SetDistributionType,
// RemoveTitlekeyCrypto, UpdateContentID, or a hash-tree patch that touched
// a layer whose master hash lives in the header).
type Context struct {
	log zerolog.Logger

	storage StorageKind
	reader  blockreader.Reader
	keys    keys.Provider
	tickets keys.TicketProvider

	size int64

	contentID    [16]byte
	contentIDHex string
	contentType  uint8
	declaredSize uint64
	format       FormatVersion
	keyGeneration uint8

	rightsIDPresent bool
	rightsID        [16]byte
	titleKey        [16]byte
	hasTitleKey     bool

	plainHeader rawHeader
	encHeader   [HeaderLength]byte
	headerHash  [SHA256Size]byte

	keyArea [KeyCount][16]byte

	sections [SectionCount]*Section

	headerDirty   bool
	headerWritten bool

	mainSignatureValid bool
}

// MainSignatureValid reports whether the archive header's main signature
// verified against the key provider's modulus for its
// main_signature_key_generation. A failed verification does not make the
// context unusable; per spec.md §7 this is a policy decision for the
// caller, not an initialization failure.
func (c *Context) MainSignatureValid() bool { return c.mainSignatureValid }

// Format returns the archive's on-disk layout generation.
func (c *Context) Format() FormatVersion { return c.format }

// Size returns the archive's declared (and verified) total byte size.
func (c *Context) Size() int64 { return c.size }

// ContentID returns the archive's 16-byte content identifier and its hex
// string form.
func (c *Context) ContentID() ([16]byte, string) { return c.contentID, c.contentIDHex }

// HeaderDirty reports whether the in-memory header differs from the
// last-encrypted image.
func (c *Context) HeaderDirty() bool { return c.headerDirty }

// HeaderWritten reports whether EncryptHeader has re-encrypted the header
// into its write-back image. It is not cleared when the header is marked
// dirty again, and splicing that image into a buffer does not set it.
func (c *Context) HeaderWritten() bool { return c.headerWritten }

// Section returns the section context for slot i (0..3), or nil if that
// slot is unoccupied or was disabled during parsing.
func (c *Context) Section(i int) *Section {
	if i < 0 || i >= SectionCount {
		return nil
	}
	return c.sections[i]
}

// Section is one occupied-and-valid section slot. A section that failed a
// structural check during header parsing (bad hash, invalid sparse
// metadata, unresolved encryption kind) is dropped from Context.sections
// entirely rather than kept in a disabled state, since nothing downstream
// may address it safely.
type Section struct {
	archive *Context
	index   int

	sectionType SectionType
	encryption  EncryptionKind

	offset int64
	size   int64

	upperIV [8]byte

	sparse sparseLayer

	ctrKey    [16]byte
	hasCTRKey bool
	xts       *ncacrypto.XTSCipher
	hasXTSKey bool

	plainHeader rawSectionHeader
	encHeader   [SectionHeaderLength]byte

	// headerPos/headerSector/headerXTS describe where and how this
	// section's own header is stored on disk, so the hash-tree patcher
	// can re-encrypt it after updating its master hash (spec.md §4.4).
	headerPos    int64
	headerSector uint64
	headerXTS    *ncacrypto.XTSCipher

	headerWritten bool
}

// sparseLayer mirrors rawSparseInfo in decoded form.
type sparseLayer struct {
	present      bool
	bucketOffset int64
	bucketSize   int64
	counterSeed  [16]byte
}

// Index returns the section's slot (0..3).
func (s *Section) Index() int { return s.index }

// Type returns the section's derived filesystem type.
func (s *Section) Type() SectionType { return s.sectionType }

// Encryption returns the section's cipher kind.
func (s *Section) Encryption() EncryptionKind { return s.encryption }

// Offset returns the section's absolute start offset in the archive.
func (s *Section) Offset() int64 { return s.offset }

// Size returns the section's byte length.
func (s *Section) Size() int64 { return s.size }

// IsSparse reports whether the section carries a sparse (bucket-indirected)
// payload layer. Sparse sections are read-only for the hash-tree patcher.
func (s *Section) IsSparse() bool { return s.sparse.present }

func newStructureErr(op string, format string, args ...interface{}) error {
	return ncaerr.New(ncaerr.KindStructure, op, fmt.Errorf(format, args...))
}

func newInputErr(op string, format string, args ...interface{}) error {
	return ncaerr.New(ncaerr.KindInput, op, fmt.Errorf(format, args...))
}

func newCryptoErr(op string, format string, args ...interface{}) error {
	return ncaerr.New(ncaerr.KindCrypto, op, fmt.Errorf(format, args...))
}

func newIOErr(op string, err error) error {
	return ncaerr.New(ncaerr.KindIO, op, err)
}

func ncaErrResource(op string, format string, args ...interface{}) error {
	return ncaerr.New(ncaerr.KindResource, op, fmt.Errorf(format, args...))
}
