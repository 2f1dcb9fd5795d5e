package nca

import (
	"bytes"
	"encoding/binary"

	"github.com/rs/zerolog"

	"github.com/nxdt-go/ncatool/pkg/blockreader"
	"github.com/nxdt-go/ncatool/pkg/keys"
	"github.com/nxdt-go/ncatool/pkg/ncacrypto"
)

func decodeStruct(buf []byte, v interface{}) error {
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, v)
}

func encodeStruct(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Options configures NewContext. ContentID is supplied by the caller
// because, unlike the rest of the archive context's identity, it is not
// carried in the header itself (the reference implementation derives it
// from the containing file's name).
type Options struct {
	Storage   StorageKind
	ContentID [16]byte
	Logger    zerolog.Logger
}

// NewContext builds an archive context from reader, decrypting and
// validating the archive header and its four section headers. Per-section
// structural failures (bad hash, invalid sparse metadata) disable only
// that section; archive-level structural failures (bad magic, size
// mismatch) fail the call outright. A failed main-signature verification
// never fails this call — see Context.MainSignatureValid.
func NewContext(reader blockreader.Reader, keyProvider keys.Provider, ticketProvider keys.TicketProvider, opts Options) (*Context, error) {
	const op = "nca.NewContext"

	size := reader.Size()
	if size < HeaderLength {
		return nil, newStructureErr(op, "archive size %d shorter than header length %#x", size, HeaderLength)
	}

	rawBuf := make([]byte, HeaderLength)
	if err := reader.ReadAt(rawBuf, 0); err != nil {
		return nil, newIOErr(op, err)
	}

	headerKey, err := keyProvider.HeaderKey()
	if err != nil {
		return nil, newCryptoErr(op, "header key: %w", err)
	}
	headerXTS, err := ncacrypto.NewXTSCipher(headerKey)
	if err != nil {
		return nil, newCryptoErr(op, "header XTS cipher: %w", err)
	}

	plainBuf := make([]byte, HeaderLength)
	if err := headerXTS.Decrypt(plainBuf, rawBuf, 0); err != nil {
		return nil, newCryptoErr(op, "decrypt header: %w", err)
	}

	var hdr rawHeader
	if err := decodeStruct(plainBuf, &hdr); err != nil {
		return nil, newStructureErr(op, "decode header: %w", err)
	}

	format := formatFromMagic(hdr.Magic)
	if format == FormatUnknown {
		return nil, newStructureErr(op, "unrecognized magic %q", hdr.Magic)
	}
	if hdr.ContentSize != uint64(size) {
		return nil, newStructureErr(op, "content_size %d does not match archive size %d", hdr.ContentSize, size)
	}

	c := &Context{
		log:          opts.Logger,
		storage:      opts.Storage,
		reader:       reader,
		keys:         keyProvider,
		tickets:      ticketProvider,
		size:         size,
		contentID:    opts.ContentID,
		contentIDHex: hexString(opts.ContentID[:]),
		contentType:  hdr.ContentType,
		declaredSize: hdr.ContentSize,
		format:       format,
		keyGeneration: maxUint8(hdr.KeyGeneration, hdr.KeyGenerationOld),
		rightsIDPresent: !isZero16(hdr.RightsID),
		rightsID:      hdr.RightsID,
		plainHeader:   hdr,
		headerHash:    ncacrypto.SHA256(plainBuf),
	}
	copy(c.encHeader[:], rawBuf)

	signed := plainBuf[MagicOffset : MagicOffset+SignatureAreaSize]
	if modulus, ok := keyProvider.MainSignatureModulus(hdr.MainSignatureKeyGeneration); ok {
		c.mainSignatureValid = ncacrypto.VerifyPSSSHA256(signed, hdr.MainSignature[:], modulus)
	}

	if c.rightsIDPresent {
		if tk, ok := ticketProvider.Lookup(hdr.RightsID, opts.Storage.isFromRemovable()); ok {
			c.titleKey = tk
			c.hasTitleKey = true
		}
	} else {
		keyArea, err := decryptKeyArea(keyProvider, hdr.KeyArea, hdr.KeyAreaKeyIndex, c.keyGeneration, format)
		if err != nil {
			return nil, err
		}
		c.keyArea = keyArea
	}

	for i := 0; i < SectionCount; i++ {
		entry := hdr.FsEntries[i]
		if entry.isZero() {
			continue
		}
		sect, err := parseSectionHeader(c, i, entry)
		if err != nil {
			c.log.Warn().Err(err).Int("section", i).Msg("disabling section: structural error")
			continue
		}
		c.sections[i] = sect
	}

	return c, nil
}

// parseSectionHeader reads, decrypts, validates, and fully builds the
// section context for slot i. Any returned error means the caller should
// disable (skip) that section rather than fail archive construction.
func parseSectionHeader(c *Context, i int, entry rawFsEntry) (*Section, error) {
	op := "nca.parseSectionHeader"

	startSector := entry.StartSector
	endSector := entry.EndSector
	offset := int64(startSector) * SectorMultiplier
	end := int64(endSector) * SectorMultiplier
	if end < offset {
		return nil, newStructureErr(op, "section %d: end sector before start sector", i)
	}
	size := end - offset

	var headerPos int64
	var sector uint64
	var xtsKey [32]byte
	switch c.format {
	case FormatV3:
		headerPos = HeaderLength + int64(i)*SectionHeaderLength
		sector = uint64(2 + i)
		hk, err := c.keys.HeaderKey()
		if err != nil {
			return nil, newCryptoErr(op, "header key: %w", err)
		}
		xtsKey = hk
	case FormatV2:
		headerPos = HeaderLength + int64(i)*SectionHeaderLength
		sector = 0
		hk, err := c.keys.HeaderKey()
		if err != nil {
			return nil, newCryptoErr(op, "header key: %w", err)
		}
		xtsKey = hk
	case FormatV0:
		headerPos = offset
		if startSector < 2 {
			return nil, newStructureErr(op, "section %d: V0 start sector %d below archive header", i, startSector)
		}
		sector = uint64(startSector) - 2
		copy(xtsKey[:16], c.keyArea[0][:])
		copy(xtsKey[16:], c.keyArea[1][:])
	default:
		return nil, newStructureErr(op, "section %d: unsupported format %s", i, c.format)
	}

	rawBuf := make([]byte, SectionHeaderLength)
	if err := c.reader.ReadAt(rawBuf, headerPos); err != nil {
		return nil, newIOErr(op, err)
	}

	xts, err := ncacrypto.NewXTSCipher(xtsKey)
	if err != nil {
		return nil, newCryptoErr(op, "section %d: XTS cipher: %w", i, err)
	}
	plainBuf := make([]byte, SectionHeaderLength)
	if err := xts.Decrypt(plainBuf, rawBuf, sector); err != nil {
		return nil, newCryptoErr(op, "section %d: decrypt: %w", i, err)
	}

	if got := ncacrypto.SHA256(plainBuf); got != c.plainHeader.FsHeaderHash[i] {
		return nil, newStructureErr(op, "section %d: header hash mismatch", i)
	}

	var raw rawSectionHeader
	if err := decodeStruct(plainBuf, &raw); err != nil {
		return nil, newStructureErr(op, "section %d: decode: %w", i, err)
	}

	sectType := deriveSectionType(raw.FsType, raw.HashType, raw.EncryptionType, c.format)
	if sectType == SectionInvalid {
		return nil, newStructureErr(op, "section %d: invalid fs type %d", i, raw.FsType)
	}
	encKind := deriveEncryptionKind(raw.EncryptionType)
	if encKind == EncryptionUnknown {
		return nil, newStructureErr(op, "section %d: unresolvable encryption type %d", i, raw.EncryptionType)
	}

	if offset < HeaderLength || size <= 0 {
		return nil, newStructureErr(op, "section %d: invalid offset/size (%d, %d)", i, offset, size)
	}

	s := &Section{
		archive:      c,
		index:        i,
		sectionType:  sectType,
		encryption:   encKind,
		offset:       offset,
		size:         size,
		upperIV:      raw.AesCTRUpperIV,
		plainHeader:  raw,
		headerPos:    headerPos,
		headerSector: sector,
		headerXTS:    xts,
	}
	copy(s.encHeader[:], rawBuf)

	if raw.Sparse.Present != 0 {
		s.sparse = sparseLayer{
			present:      true,
			bucketOffset: int64(raw.Sparse.BucketOffset),
			bucketSize:   int64(raw.Sparse.BucketSize),
			counterSeed:  raw.Sparse.SparseCounterSeed,
		}
		if s.sparse.bucketOffset+s.sparse.bucketSize > c.size {
			return nil, newStructureErr(op, "section %d: sparse bucket range exceeds archive size", i)
		}
	}

	if err := wireSectionKeys(c, s); err != nil {
		return nil, err
	}

	if s.sparse.present {
		if err := validateBucketTable(s); err != nil {
			return nil, err
		}
	}

	if !s.sparse.present && s.offset+s.size > c.size {
		return nil, newStructureErr(op, "section %d: range exceeds archive size", i)
	}

	return s, nil
}

// wireSectionKeys resolves and installs the working key(s) for a section's
// cipher kind, per spec.md §4.3: rights-id present uses the title key for
// CTR/CTR-Ex; otherwise key-area slot 2 is used for CTR *and* CTR-Ex alike
// (the shipped quirk: CTR-Ex never reads slot 3), and slots 0/1 for XTS.
func wireSectionKeys(c *Context, s *Section) error {
	op := "nca.wireSectionKeys"
	switch s.encryption {
	case EncryptionNone:
		return nil
	case EncryptionCTR, EncryptionCTREx:
		if c.rightsIDPresent {
			if !c.hasTitleKey {
				return newCryptoErr(op, "section %d: rights id present but no title key resolved", s.index)
			}
			s.ctrKey = c.titleKey
		} else {
			s.ctrKey = c.keyArea[2]
		}
		s.hasCTRKey = true
		return nil
	case EncryptionXTS:
		var key [32]byte
		copy(key[:16], c.keyArea[0][:])
		copy(key[16:], c.keyArea[1][:])
		xts, err := ncacrypto.NewXTSCipher(key)
		if err != nil {
			return newCryptoErr(op, "section %d: XTS cipher: %w", s.index, err)
		}
		s.xts = xts
		s.hasXTSKey = true
		return nil
	default:
		return newInputErr(op, "section %d: unresolvable encryption kind", s.index)
	}
}

// EncryptHeader re-encrypts the in-memory archive header (key area plus
// the signed main fields) into c.encHeader, producing a write-back image
// for the header's HeaderLength bytes only. It does not touch any section
// header — those are re-encrypted solely by Section.reEncryptHeader, which
// GeneratePatch calls when a section's master hash changes. A V0 key area
// stored in plaintext (matching the published marker) is written back
// unchanged. It is a no-op success unless HeaderDirty reports true.
func (c *Context) EncryptHeader() error {
	const op = "nca.EncryptHeader"
	if !c.headerDirty {
		return nil
	}

	plaintextV0KeyArea := c.format == FormatV0 &&
		ncacrypto.SHA256(flattenKeyArea(c.plainHeader.KeyArea)) == v0PlaintextKeyAreaMarker
	if !c.rightsIDPresent && !plaintextV0KeyArea {
		ka, err := encryptKeyArea(c.keys, c.keyArea, c.plainHeader.KeyAreaKeyIndex, c.keyGeneration, c.format)
		if err != nil {
			return err
		}
		c.plainHeader.KeyArea = ka
	}

	plainBuf, err := encodeStruct(&c.plainHeader)
	if err != nil {
		return newStructureErr(op, "encode header: %w", err)
	}

	headerKey, err := c.keys.HeaderKey()
	if err != nil {
		return newCryptoErr(op, "header key: %w", err)
	}
	xts, err := ncacrypto.NewXTSCipher(headerKey)
	if err != nil {
		return newCryptoErr(op, "header XTS cipher: %w", err)
	}
	encBuf := make([]byte, HeaderLength)
	if err := xts.Encrypt(encBuf, plainBuf, 0); err != nil {
		return newCryptoErr(op, "encrypt header: %w", err)
	}
	copy(c.encHeader[:], encBuf)
	c.headerWritten = true
	c.headerDirty = false
	return nil
}

// SetDistributionType sets the archive's distribution-type field and
// marks the header dirty.
func (c *Context) SetDistributionType(v uint8) {
	c.plainHeader.DistributionType = v
	c.headerDirty = true
}

// RemoveTitlekeyCrypto converts a rights-id-crypto archive to key-area
// crypto in place: the resolved title key is copied into key-area slot 2
// (the slot CTR and CTR-Ex both read, per the container's slot-2 quirk),
// the rights id is cleared, and the header is marked dirty.
func (c *Context) RemoveTitlekeyCrypto() error {
	const op = "nca.RemoveTitlekeyCrypto"
	if !c.rightsIDPresent {
		return nil
	}
	if !c.hasTitleKey {
		return newCryptoErr(op, "no title key resolved for this archive")
	}
	c.keyArea[2] = c.titleKey
	c.plainHeader.RightsID = [16]byte{}
	c.rightsIDPresent = false
	for _, s := range c.sections {
		if s != nil && (s.encryption == EncryptionCTR || s.encryption == EncryptionCTREx) {
			s.ctrKey = c.titleKey
			s.hasCTRKey = true
		}
	}
	c.headerDirty = true
	return nil
}

// UpdateContentID replaces the archive's content identifier, used when the
// caller renames or re-derives the content this context belongs to.
func (c *Context) UpdateContentID(id [16]byte) {
	c.contentID = id
	c.contentIDHex = hexString(id[:])
	c.headerDirty = true
}

func maxUint8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

func isZero16(b [16]byte) bool {
	return b == [16]byte{}
}

func hexString(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0xf]
	}
	return string(out)
}
