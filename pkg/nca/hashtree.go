package nca

import (
	"github.com/nxdt-go/ncatool/pkg/ncacrypto"
)

// hashLayer is one layer of a section's hash tree, in the common shape
// both on-disk descriptor variants (flat-SHA256, hierarchical integrity)
// are normalized to: a section-relative byte span plus the hash block
// size blocks within it are grouped by.
type hashLayer struct {
	offset    int64
	size      int64
	blockSize int64
}

// hashLayers decodes the section header's hash-tree descriptor into its
// layers, ordered 0 (outermost hash layer, or the master-hash layer for
// flat-SHA256) through L-1 (the data layer).
func (s *Section) hashLayers() ([]hashLayer, error) {
	const op = "nca.Section.hashLayers"
	switch deriveHashTreeKind(s.plainHeader.HashType) {
	case HashTreeFlatSHA256:
		var flat rawHierarchicalSHA256
		if err := decodeStruct(s.plainHeader.HashData[:], &flat); err != nil {
			return nil, newStructureErr(op, "section %d: decode flat-SHA256 descriptor: %w", s.index, err)
		}
		if flat.RegionCount == 0 || flat.RegionCount > MaxFlatSHA256Regions {
			return nil, newStructureErr(op, "section %d: invalid flat-SHA256 region count %d", s.index, flat.RegionCount)
		}
		layers := make([]hashLayer, flat.RegionCount)
		for i := 0; i < int(flat.RegionCount); i++ {
			layers[i] = hashLayer{
				offset:    int64(flat.Regions[i].Offset),
				size:      int64(flat.Regions[i].Size),
				blockSize: int64(flat.BlockSize),
			}
		}
		return layers, nil
	case HashTreeIntegrity:
		var integ rawHierarchicalIntegrity
		if err := decodeStruct(s.plainHeader.HashData[:], &integ); err != nil {
			return nil, newStructureErr(op, "section %d: decode integrity descriptor: %w", s.index, err)
		}
		layers := make([]hashLayer, IntegrityLevels)
		for i := 0; i < IntegrityLevels; i++ {
			lvl := integ.Levels[i]
			layers[i] = hashLayer{
				offset:    int64(lvl.Offset),
				size:      int64(lvl.Size),
				blockSize: int64(1) << lvl.BlockOrder,
			}
		}
		return layers, nil
	default:
		return nil, newStructureErr(op, "section %d: unrecognized hash tree kind", s.index)
	}
}

// setMasterHash rewrites the master hash stored in the section header's
// hash-tree descriptor, leaving the rest of the descriptor untouched.
func (s *Section) setMasterHash(h [32]byte) error {
	const op = "nca.Section.setMasterHash"
	switch deriveHashTreeKind(s.plainHeader.HashType) {
	case HashTreeFlatSHA256:
		var flat rawHierarchicalSHA256
		if err := decodeStruct(s.plainHeader.HashData[:], &flat); err != nil {
			return newStructureErr(op, "section %d: %w", s.index, err)
		}
		flat.MasterHash = h
		buf, err := encodeStruct(&flat)
		if err != nil {
			return newStructureErr(op, "section %d: %w", s.index, err)
		}
		copy(s.plainHeader.HashData[:], buf)
	case HashTreeIntegrity:
		var integ rawHierarchicalIntegrity
		if err := decodeStruct(s.plainHeader.HashData[:], &integ); err != nil {
			return newStructureErr(op, "section %d: %w", s.index, err)
		}
		integ.MasterHash = h
		buf, err := encodeStruct(&integ)
		if err != nil {
			return newStructureErr(op, "section %d: %w", s.index, err)
		}
		copy(s.plainHeader.HashData[:], buf)
	}
	return nil
}

// reEncryptHeader re-encrypts the section's own (now-mutated) plaintext
// header at its original on-disk position and XTS sector.
func (s *Section) reEncryptHeader() ([]byte, error) {
	const op = "nca.Section.reEncryptHeader"
	plainBuf, err := encodeStruct(&s.plainHeader)
	if err != nil {
		return nil, newStructureErr(op, "section %d: encode: %w", s.index, err)
	}
	encBuf := make([]byte, SectionHeaderLength)
	if err := s.headerXTS.Encrypt(encBuf, plainBuf, s.headerSector); err != nil {
		return nil, newCryptoErr(op, "section %d: %w", s.index, err)
	}
	copy(s.encHeader[:], encBuf)
	s.headerWritten = true
	return encBuf, nil
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// GeneratePatch rewrites [plainOffset, plainOffset+len(plain)) of the
// section's data layer with plain, walking every ancestor hash layer
// bottom-up to keep the tree consistent, and returns the full set of
// re-encrypted spans that must overwrite the archive to realize the
// change: one per hash-tree layer, the section's own header (its master
// hash changed), and the archive header (its section-header-hash slot
// changed). Sparse sections are rejected (spec.md §4.4).
func (s *Section) GeneratePatch(plain []byte, plainOffset int64) (*PatchSet, error) {
	const op = "nca.Section.GeneratePatch"
	if s.sparse.present {
		return nil, newInputErr(op, "section %d: sparse sections cannot be patched", s.index)
	}
	if len(plain) == 0 {
		return nil, newInputErr(op, "section %d: empty patch", s.index)
	}

	layers, err := s.hashLayers()
	if err != nil {
		return nil, err
	}
	L := len(layers)
	if L == 0 {
		return nil, newStructureErr(op, "section %d: no hash layers", s.index)
	}
	dataLayer := layers[L-1]
	if plainOffset < 0 || plainOffset+int64(len(plain)) > dataLayer.size {
		return nil, newInputErr(op, "section %d: patch [%d,%d) out of range of data layer [0,%d)", s.index, plainOffset, plainOffset+int64(len(plain)), dataLayer.size)
	}

	staging, release := acquireStaging()
	defer release()

	entries := make([]*PatchEntry, L)

	curPlain := plain
	curOffset := plainOffset
	curSize := int64(len(plain))
	isIntegrity := deriveHashTreeKind(s.plainHeader.HashType) == HashTreeIntegrity

	for l := L - 1; l >= 0; l-- {
		layer := layers[l]
		block := layer.blockSize

		var curReadStart, curReadEnd int64
		if l > 0 {
			curReadStart = layer.offset + (curOffset/block)*block
			curReadEnd = layer.offset + ceilDiv(curOffset+curSize, block)*block
			if maxEnd := layer.offset + layer.size; curReadEnd > maxEnd {
				curReadEnd = maxEnd
			}
		} else {
			curReadStart = layer.offset
			curReadEnd = layer.offset + layer.size
		}
		curReadSize := curReadEnd - curReadStart
		if curReadSize <= 0 {
			return nil, newStructureErr(op, "section %d: layer %d has empty read span", s.index, l)
		}
		if curReadSize > int64(len(staging)) {
			return nil, ncaErrResource(op, "section %d: layer %d read span %d exceeds staging buffer", s.index, l, curReadSize)
		}

		cur := staging[:curReadSize]
		absStart := s.offset + curReadStart
		if err := s.archive.reader.ReadAt(cur, absStart); err != nil {
			return nil, newIOErr(op, err)
		}
		if err := s.decrypt(cur, absStart); err != nil {
			return nil, err
		}

		winStart := curOffset - (curReadStart - layer.offset)
		copy(cur[winStart:winStart+curSize], curPlain)

		if l > 0 {
			parentReadStart := (curOffset / block) * SHA256Size
			numSlots := ceilDiv(curReadSize, block)
			parentReadSize := numSlots * SHA256Size
			if parentReadSize <= 0 {
				return nil, newStructureErr(op, "section %d: layer %d produced empty parent span", s.index, l)
			}
			parentPlain := make([]byte, parentReadSize)
			for k := int64(0); k < numSlots; k++ {
				segStart := k * block
				segEnd := segStart + block
				if segEnd > curReadSize {
					segEnd = curReadSize
				}
				var h [32]byte
				if isIntegrity {
					// the effective block is always the full hash block
					// size; bytes past the layer's valid range are zero
					// (spec.md §4.4 step 4), which a zero-extended
					// scratch buffer models directly.
					segBuf := make([]byte, block)
					copy(segBuf, cur[segStart:segEnd])
					h = ncacrypto.SHA256(segBuf)
				} else {
					h = ncacrypto.SHA256(cur[segStart:segEnd])
				}
				copy(parentPlain[k*SHA256Size:(k+1)*SHA256Size], h[:])
			}
			curPlain = parentPlain
			curOffset = parentReadStart
			curSize = parentReadSize
		} else {
			master := ncacrypto.SHA256(cur)
			if err := s.setMasterHash(master); err != nil {
				return nil, err
			}
		}

		if err := s.encrypt(cur, absStart); err != nil {
			return nil, err
		}
		entries[l] = &PatchEntry{
			Ciphertext: append([]byte(nil), cur...),
			Offset:     absStart,
			Size:       curReadSize,
		}
	}

	sectionHeaderCipher, err := s.reEncryptHeader()
	if err != nil {
		return nil, err
	}
	entries = append(entries, &PatchEntry{
		Ciphertext: sectionHeaderCipher,
		Offset:     s.headerPos,
		Size:       SectionHeaderLength,
	})

	c := s.archive
	c.plainHeader.FsHeaderHash[s.index] = ncacrypto.SHA256(mustEncodeStruct(&s.plainHeader))
	c.headerDirty = true
	if err := c.EncryptHeader(); err != nil {
		return nil, err
	}
	entries = append(entries, &PatchEntry{
		Ciphertext: append([]byte(nil), c.encHeader[:]...),
		Offset:     0,
		Size:       HeaderLength,
	})

	id, idHex := c.ContentID()
	return &PatchSet{ContentID: id, ContentIDHex: idHex, Entries: entries}, nil
}

func mustEncodeStruct(v interface{}) []byte {
	buf, err := encodeStruct(v)
	if err != nil {
		panic(err)
	}
	return buf
}
