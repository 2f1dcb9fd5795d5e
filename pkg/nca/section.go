package nca

import (
	"github.com/nxdt-go/ncatool/pkg/ncacrypto"
)

// unitSize is the cipher's sector/block granularity: reads and writes that
// are not aligned to it must go through the staging-buffer slow path.
func (s *Section) unitSize() int64 {
	switch s.encryption {
	case EncryptionXTS:
		return ncacrypto.XTSSectorSize
	case EncryptionCTR, EncryptionCTREx:
		return ncacrypto.CTRBlockSize
	default:
		return 1
	}
}

// xtsSector computes the XTS sector number for an absolute content offset,
// per spec.md §4.1/§4.3: V0 numbers sectors from the start of the payload
// region (content_offset - header_length), everything else numbers them
// from the start of the section.
func (s *Section) xtsSector(contentOffset, offsetInSection int64) uint64 {
	if s.archive.format == FormatV0 {
		return uint64(contentOffset-HeaderLength) / ncacrypto.XTSSectorSize
	}
	return uint64(offsetInSection) / ncacrypto.XTSSectorSize
}

// decrypt decrypts buf in place; buf holds the cipher's unit-aligned span
// starting at absOffset (an absolute archive offset).
func (s *Section) decrypt(buf []byte, absOffset int64) error {
	const op = "nca.Section.decrypt"
	switch s.encryption {
	case EncryptionNone:
		return nil
	case EncryptionCTR, EncryptionCTREx:
		ctr := ncacrypto.CTRCounter(s.upperIV, absOffset)
		stream, err := ncacrypto.NewCTRStream(s.ctrKey, ctr)
		if err != nil {
			return newCryptoErr(op, "section %d: %w", s.index, err)
		}
		stream.XORKeyStream(buf, buf)
		return nil
	case EncryptionXTS:
		sector := s.xtsSector(absOffset, absOffset-s.offset)
		if err := s.xts.Decrypt(buf, buf, sector); err != nil {
			return newCryptoErr(op, "section %d: %w", s.index, err)
		}
		return nil
	default:
		return newInputErr(op, "section %d: unresolvable encryption kind", s.index)
	}
}

// encrypt is the encrypt-direction counterpart of decrypt. AES-CTR is
// symmetric, so only the XTS case differs.
func (s *Section) encrypt(buf []byte, absOffset int64) error {
	const op = "nca.Section.encrypt"
	if s.encryption == EncryptionCTR || s.encryption == EncryptionCTREx {
		return s.decrypt(buf, absOffset)
	}
	if s.encryption == EncryptionXTS {
		sector := s.xtsSector(absOffset, absOffset-s.offset)
		if err := s.xts.Encrypt(buf, buf, sector); err != nil {
			return newCryptoErr(op, "section %d: %w", s.index, err)
		}
		return nil
	}
	return nil
}

// readCTREx reads and decrypts out at absOffset using the section's CTR
// key but with ctrVal injected into the counter's upper half, as used for
// bucket-table and patch-RomFS-generation reads (spec.md §4.3).
func (s *Section) readCTREx(out []byte, absOffset int64, ctrVal uint32) error {
	const op = "nca.Section.readCTREx"
	if !s.hasCTRKey {
		return newCryptoErr(op, "section %d: no CTR key", s.index)
	}
	if err := s.archive.reader.ReadAt(out, absOffset); err != nil {
		return newIOErr(op, err)
	}
	ctr := ncacrypto.CTRExCounter(s.upperIV, ctrVal, absOffset)
	stream, err := ncacrypto.NewCTRStream(s.ctrKey, ctr)
	if err != nil {
		return newCryptoErr(op, "section %d: %w", s.index, err)
	}
	stream.XORKeyStream(out, out)
	return nil
}

// validateBucketTable reads and sanity-checks the 16-byte header of a
// sparse section's bucket table (spec.md §3, per-section invariants):
// magic matches, version matches, and the entry count is non-zero. The
// bucket table's range within the archive is checked by
// parseSectionHeader before this is called.
func validateBucketTable(s *Section) error {
	const op = "nca.validateBucketTable"
	buf := make([]byte, 16)
	if err := s.readCTREx(buf, s.sparse.bucketOffset, 0); err != nil {
		return err
	}
	var h rawBucketHeader
	if err := decodeStruct(buf, &h); err != nil {
		return newStructureErr(op, "section %d: decode bucket header: %w", s.index, err)
	}
	if h.Magic != bucketTableMagic {
		return newStructureErr(op, "section %d: bad bucket table magic %q", s.index, h.Magic)
	}
	if h.Version != 1 {
		return newStructureErr(op, "section %d: unsupported bucket table version %d", s.index, h.Version)
	}
	if h.EntryCount == 0 {
		return newStructureErr(op, "section %d: bucket table has zero entries", s.index)
	}
	return nil
}

// Read fills out with the decrypted payload bytes of the section starting
// at offset bytes into the section. It chooses the fast path (no staging,
// in-place decrypt) when both the absolute content offset and len(out) are
// multiples of the cipher's unit, and the slow path (staging buffer)
// otherwise.
func (s *Section) Read(out []byte, offset int64) error {
	const op = "nca.Section.Read"
	if offset < 0 || offset+int64(len(out)) > s.size {
		return newInputErr(op, "section %d: read [%d,%d) out of range [0,%d)", s.index, offset, offset+int64(len(out)), s.size)
	}
	if s.sparse.present {
		return newInputErr(op, "section %d: sparse section reads are not supported", s.index)
	}
	if len(out) == 0 {
		return nil
	}

	buf, release := acquireStaging()
	defer release()
	return s.readLocked(out, offset, buf)
}

func (s *Section) readLocked(out []byte, offset int64, staging []byte) error {
	const op = "nca.Section.Read"
	c := s.archive
	contentOffset := s.offset + offset

	if s.encryption == EncryptionNone {
		if err := c.reader.ReadAt(out, contentOffset); err != nil {
			return newIOErr(op, err)
		}
		return nil
	}

	unit := s.unitSize()
	if contentOffset%unit == 0 && int64(len(out))%unit == 0 {
		if err := c.reader.ReadAt(out, contentOffset); err != nil {
			return newIOErr(op, err)
		}
		return s.decrypt(out, contentOffset)
	}

	readStart := (contentOffset / unit) * unit
	readEnd := ((contentOffset + int64(len(out)) + unit - 1) / unit) * unit
	spanSize := readEnd - readStart

	if spanSize > int64(len(staging)) {
		firstSpan := int64(len(staging)) - int64(len(staging))%unit
		mid := readStart + firstSpan
		firstOutN := int64(0)
		if mid > contentOffset {
			firstOutN = mid - contentOffset
		}
		if firstOutN > int64(len(out)) {
			firstOutN = int64(len(out))
		}
		if firstOutN > 0 {
			if err := s.readLocked(out[:firstOutN], offset, staging); err != nil {
				return err
			}
		}
		if firstOutN < int64(len(out)) {
			if err := s.readLocked(out[firstOutN:], offset+firstOutN, staging); err != nil {
				return err
			}
		}
		return nil
	}

	chunk := staging[:spanSize]
	if err := c.reader.ReadAt(chunk, readStart); err != nil {
		return newIOErr(op, err)
	}
	if err := s.decrypt(chunk, readStart); err != nil {
		return err
	}
	copy(out, chunk[contentOffset-readStart:contentOffset-readStart+int64(len(out))])
	return nil
}

// EncryptBlock produces a freshly allocated ciphertext span covering
// plain, re-encrypted in place at its original storage offset. If the
// range is already unit-aligned, plain is encrypted directly; otherwise
// the enclosing aligned span is read back, decrypted, overlaid with
// plain, and the whole span is re-encrypted. Sparse sections are
// rejected: this is the write side of a section, and sparse layers are
// not supported for patching (spec.md §4.3, §4.4).
func (s *Section) EncryptBlock(plain []byte, offset int64) (cipherBlock []byte, absOffset int64, err error) {
	const op = "nca.Section.EncryptBlock"
	if s.sparse.present {
		return nil, 0, newInputErr(op, "section %d: sparse sections cannot be patched", s.index)
	}
	if offset < 0 || offset+int64(len(plain)) > s.size {
		return nil, 0, newInputErr(op, "section %d: write [%d,%d) out of range [0,%d)", s.index, offset, offset+int64(len(plain)), s.size)
	}
	if len(plain) == 0 {
		return nil, s.offset + offset, nil
	}

	contentOffset := s.offset + offset

	if s.encryption == EncryptionNone {
		out := append([]byte(nil), plain...)
		return out, contentOffset, nil
	}

	unit := s.unitSize()
	if contentOffset%unit == 0 && int64(len(plain))%unit == 0 {
		out := append([]byte(nil), plain...)
		if err := s.encrypt(out, contentOffset); err != nil {
			return nil, 0, err
		}
		return out, contentOffset, nil
	}

	buf, release := acquireStaging()
	defer release()

	readStart := (contentOffset / unit) * unit
	readEnd := ((contentOffset + int64(len(plain)) + unit - 1) / unit) * unit
	spanSize := readEnd - readStart
	if spanSize > int64(len(buf)) {
		return nil, 0, ncaErrResource(op, "section %d: patch span %d exceeds staging buffer", s.index, spanSize)
	}

	chunk := buf[:spanSize]
	if err := s.archive.reader.ReadAt(chunk, readStart); err != nil {
		return nil, 0, newIOErr(op, err)
	}
	if err := s.decrypt(chunk, readStart); err != nil {
		return nil, 0, err
	}
	copy(chunk[contentOffset-readStart:], plain)
	if err := s.encrypt(chunk, readStart); err != nil {
		return nil, 0, err
	}

	out := make([]byte, spanSize)
	copy(out, chunk)
	return out, readStart, nil
}
