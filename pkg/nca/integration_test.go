package nca

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nxdt-go/ncatool/pkg/blockreader"
	"github.com/nxdt-go/ncatool/pkg/keys"
	"github.com/nxdt-go/ncatool/pkg/ncacrypto"
)

// buildFlatSectionBlob returns a (hashLayer || dataLayer) plaintext span
// for a flat-SHA256 descriptor with numBlocks blocks of blockSize bytes
// each, and the rawHierarchicalSHA256 descriptor describing it relative to
// regionBase (the section-relative offset the hash layer starts at).
func buildFlatSectionBlob(blockSize, numBlocks int64, regionBase int64) ([]byte, rawHierarchicalSHA256) {
	hashLayerSize := numBlocks * SHA256Size
	dataLayerSize := numBlocks * blockSize

	data := sequentialBytes(int(dataLayerSize))
	hashLayer := make([]byte, hashLayerSize)
	for k := int64(0); k < numBlocks; k++ {
		h := ncacrypto.SHA256(data[k*blockSize : (k+1)*blockSize])
		copy(hashLayer[k*SHA256Size:], h[:])
	}

	blob := append(append([]byte(nil), hashLayer...), data...)

	var rawHash rawHierarchicalSHA256
	rawHash.MasterHash = ncacrypto.SHA256(hashLayer)
	rawHash.BlockSize = uint32(blockSize)
	rawHash.RegionCount = 2
	rawHash.Regions[0] = rawRegion{Offset: uint64(regionBase), Size: uint64(hashLayerSize)}
	rawHash.Regions[1] = rawRegion{Offset: uint64(regionBase) + uint64(hashLayerSize), Size: uint64(dataLayerSize)}

	return blob, rawHash
}

// TestNewContextV3PopulatedSectionRealKAEK is an integration test that
// drives an archive with one populated, CTR-encrypted PartitionFS section
// through the real NewContext parsing path, exercising decryptKeyArea's
// real-KAEK-resolution branch (key-area slot 2, resolved from a key-set
// provider rather than hand-wired onto the Section struct) end to end.
func TestNewContextV3PopulatedSectionRealKAEK(t *testing.T) {
	const kaekIndex, keyGeneration = 1, 3

	var h0 [32]byte
	for i := range h0 {
		h0[i] = byte(i + 1)
	}
	var kaek [16]byte
	for i := range kaek {
		kaek[i] = byte(i + 0x40)
	}
	var ctrKeyPlain [16]byte
	for i := range ctrKeyPlain {
		ctrKeyPlain[i] = byte(i + 0x80)
	}
	ctrKeyCipher, err := ncacrypto.ECBEncryptBlock(kaek, ctrKeyPlain)
	require.NoError(t, err)

	headerXTS, err := ncacrypto.NewXTSCipher(h0)
	require.NoError(t, err)

	const sectionOffset = HeaderLength + SectionCount*SectionHeaderLength // past the fixed 4-slot header table
	blob, rawHash := buildFlatSectionBlob(0x20, 4, 0)
	const sectionSize = 0x200 // padded past len(blob) to a whole sector, unused tail is never read
	content := make([]byte, sectionSize)
	copy(content, blob)

	var upperIV [8]byte
	copy(upperIV[:], []byte{0xAA, 0xBB, 0xCC, 0xDD, 0, 0, 0, 0})
	ctr := ncacrypto.CTRCounter(upperIV, sectionOffset)
	stream, err := ncacrypto.NewCTRStream(ctrKeyPlain, ctr)
	require.NoError(t, err)
	cipherContent := make([]byte, sectionSize)
	stream.XORKeyStream(cipherContent, content)

	var sectHdr rawSectionHeader
	sectHdr.FsType = fsTypePartitionFS
	sectHdr.HashType = hashTypeFlatSHA256
	sectHdr.EncryptionType = cryptoTypeCTR
	sectHdr.AesCTRUpperIV = upperIV
	hashDataBuf, err := encodeStruct(&rawHash)
	require.NoError(t, err)
	copy(sectHdr.HashData[:], hashDataBuf)

	sectPlainBuf, err := encodeStruct(&sectHdr)
	require.NoError(t, err)
	sectEncBuf := make([]byte, SectionHeaderLength)
	require.NoError(t, headerXTS.Encrypt(sectEncBuf, sectPlainBuf, 2)) // V3 section 0: sector 2+0

	archiveSize := sectionOffset + sectionSize
	archive := make([]byte, archiveSize)
	copy(archive[HeaderLength:], sectEncBuf)
	copy(archive[sectionOffset:], cipherContent)

	var archHdr rawHeader
	archHdr.Magic = MagicNCA3
	archHdr.ContentSize = uint64(archiveSize)
	archHdr.KeyAreaKeyIndex = kaekIndex
	archHdr.KeyGeneration = keyGeneration
	archHdr.KeyArea[2] = ctrKeyCipher
	archHdr.FsEntries[0] = rawFsEntry{StartSector: uint32(sectionOffset / SectorMultiplier), EndSector: uint32(archiveSize / SectorMultiplier)}
	archHdr.FsHeaderHash[0] = ncacrypto.SHA256(sectPlainBuf)
	archPlainBuf, err := encodeStruct(&archHdr)
	require.NoError(t, err)
	archEncBuf := make([]byte, HeaderLength)
	require.NoError(t, headerXTS.Encrypt(archEncBuf, archPlainBuf, 0))
	copy(archive[0:], archEncBuf)

	provider := keys.NewStaticProvider(h0).WithKAEK(kaekIndex, keyGeneration, kaek)

	c, err := NewContext(blockreader.NewMemReader(archive), provider, noTickets{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, FormatV3, c.Format())

	s := c.Section(0)
	require.NotNil(t, s)
	assert.Equal(t, SectionPartitionFS, s.Type())
	assert.Equal(t, EncryptionCTR, s.Encryption())

	out := make([]byte, len(blob))
	require.NoError(t, s.Read(out, 0))
	assert.Equal(t, blob, out)
}

// TestNewContextV2PopulatedSectionRealKAEK mirrors the V3 case but for a V2
// archive, where every section header shares XTS sector 0 (header.go's V2
// branch) rather than being numbered per section index.
func TestNewContextV2PopulatedSectionRealKAEK(t *testing.T) {
	const kaekIndex, keyGeneration = 0, 7

	var h0 [32]byte
	for i := range h0 {
		h0[i] = byte(i + 2)
	}
	var kaek [16]byte
	for i := range kaek {
		kaek[i] = byte(i + 0x50)
	}
	var ctrKeyPlain [16]byte
	for i := range ctrKeyPlain {
		ctrKeyPlain[i] = byte(i + 0x90)
	}
	ctrKeyCipher, err := ncacrypto.ECBEncryptBlock(kaek, ctrKeyPlain)
	require.NoError(t, err)

	headerXTS, err := ncacrypto.NewXTSCipher(h0)
	require.NoError(t, err)

	const sectionOffset = HeaderLength + SectionCount*SectionHeaderLength
	blob, rawHash := buildFlatSectionBlob(0x20, 4, 0)
	const sectionSize = 0x200
	content := make([]byte, sectionSize)
	copy(content, blob)

	var upperIV [8]byte
	copy(upperIV[:], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	ctr := ncacrypto.CTRCounter(upperIV, sectionOffset)
	stream, err := ncacrypto.NewCTRStream(ctrKeyPlain, ctr)
	require.NoError(t, err)
	cipherContent := make([]byte, sectionSize)
	stream.XORKeyStream(cipherContent, content)

	var sectHdr rawSectionHeader
	sectHdr.FsType = fsTypePartitionFS
	sectHdr.HashType = hashTypeFlatSHA256
	sectHdr.EncryptionType = cryptoTypeCTR
	sectHdr.AesCTRUpperIV = upperIV
	hashDataBuf, err := encodeStruct(&rawHash)
	require.NoError(t, err)
	copy(sectHdr.HashData[:], hashDataBuf)

	sectPlainBuf, err := encodeStruct(&sectHdr)
	require.NoError(t, err)
	sectEncBuf := make([]byte, SectionHeaderLength)
	require.NoError(t, headerXTS.Encrypt(sectEncBuf, sectPlainBuf, 0)) // V2: every section header at sector 0

	archiveSize := sectionOffset + sectionSize
	archive := make([]byte, archiveSize)
	copy(archive[HeaderLength:], sectEncBuf)
	copy(archive[sectionOffset:], cipherContent)

	var archHdr rawHeader
	archHdr.Magic = MagicNCA2
	archHdr.ContentSize = uint64(archiveSize)
	archHdr.KeyAreaKeyIndex = kaekIndex
	archHdr.KeyGeneration = keyGeneration
	archHdr.KeyArea[2] = ctrKeyCipher
	archHdr.FsEntries[0] = rawFsEntry{StartSector: uint32(sectionOffset / SectorMultiplier), EndSector: uint32(archiveSize / SectorMultiplier)}
	archHdr.FsHeaderHash[0] = ncacrypto.SHA256(sectPlainBuf)
	archPlainBuf, err := encodeStruct(&archHdr)
	require.NoError(t, err)
	archEncBuf := make([]byte, HeaderLength)
	require.NoError(t, headerXTS.Encrypt(archEncBuf, archPlainBuf, 0))
	copy(archive[0:], archEncBuf)

	provider := keys.NewStaticProvider(h0).WithKAEK(kaekIndex, keyGeneration, kaek)

	c, err := NewContext(blockreader.NewMemReader(archive), provider, noTickets{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, FormatV2, c.Format())

	s := c.Section(0)
	require.NotNil(t, s)
	assert.Equal(t, SectionPartitionFS, s.Type())
	assert.Equal(t, EncryptionCTR, s.Encryption())

	out := make([]byte, len(blob))
	require.NoError(t, s.Read(out, 0))
	assert.Equal(t, blob, out)
}

// TestNewContextV0PopulatedSectionRealKAEK drives a V0 archive through
// NewContext: the section header lives inline at the section's own start
// sector (header.go's V0 branch) rather than in a fixed table, the XTS key
// for both the section header and its content comes from key-area slots
// 0/1 resolved through the real KAEK-decrypt path, and content sector
// numbers count from the start of the payload region rather than the
// section (section.go's xtsSector V0 case).
func TestNewContextV0PopulatedSectionRealKAEK(t *testing.T) {
	const kaekIndex, keyGeneration = 2, 1

	var h0 [32]byte
	for i := range h0 {
		h0[i] = byte(i + 3)
	}
	var kaek [16]byte
	for i := range kaek {
		kaek[i] = byte(i + 0x60)
	}
	var key0Plain, key1Plain [16]byte
	for i := range key0Plain {
		key0Plain[i] = byte(i + 0xA0)
	}
	for i := range key1Plain {
		key1Plain[i] = byte(i + 0xB0)
	}
	key0Cipher, err := ncacrypto.ECBEncryptBlock(kaek, key0Plain)
	require.NoError(t, err)
	key1Cipher, err := ncacrypto.ECBEncryptBlock(kaek, key1Plain)
	require.NoError(t, err)

	var xtsKey [32]byte
	copy(xtsKey[:16], key0Plain[:])
	copy(xtsKey[16:], key1Plain[:])
	contentXTS, err := ncacrypto.NewXTSCipher(xtsKey)
	require.NoError(t, err)

	headerXTS, err := ncacrypto.NewXTSCipher(h0)
	require.NoError(t, err)

	const sectionOffset = HeaderLength // V0 section header lives at the section's own start sector (2)
	const headerSpan = SectionHeaderLength
	blob, rawHash := buildFlatSectionBlob(0x20, 8, headerSpan) // regions start past the embedded header
	const contentSize = 0x200
	require.Equal(t, contentSize, len(blob))

	var sectHdr rawSectionHeader
	sectHdr.FsType = fsTypeRomFS
	sectHdr.HashType = hashTypeFlatSHA256 // V0-RomFS: RomFS fs_type + flat-SHA256 hash_type + format V0
	sectHdr.EncryptionType = cryptoTypeXTS
	hashDataBuf, err := encodeStruct(&rawHash)
	require.NoError(t, err)
	copy(sectHdr.HashData[:], hashDataBuf)

	sectPlainBuf, err := encodeStruct(&sectHdr)
	require.NoError(t, err)
	sectEncBuf := make([]byte, SectionHeaderLength)
	require.NoError(t, contentXTS.Encrypt(sectEncBuf, sectPlainBuf, 0)) // key-area XTS pair, sector = startSector(2) - 2 = 0

	cipherContent := make([]byte, contentSize)
	// xtsSector for V0 counts sectors from the start of the payload region
	// (contentOffset - HeaderLength), so the content immediately following
	// the embedded header starts at sector 1.
	require.NoError(t, contentXTS.Encrypt(cipherContent, blob, 1))

	archiveSize := sectionOffset + headerSpan + contentSize
	archive := make([]byte, archiveSize)
	copy(archive[sectionOffset:], sectEncBuf)
	copy(archive[sectionOffset+headerSpan:], cipherContent)

	var archHdr rawHeader
	archHdr.Magic = MagicNCA0
	archHdr.ContentSize = uint64(archiveSize)
	archHdr.KeyAreaKeyIndex = kaekIndex
	archHdr.KeyGeneration = keyGeneration
	archHdr.KeyArea[0] = key0Cipher
	archHdr.KeyArea[1] = key1Cipher
	archHdr.FsEntries[0] = rawFsEntry{
		StartSector: uint32(sectionOffset / SectorMultiplier),
		EndSector:   uint32(archiveSize / SectorMultiplier),
	}
	archHdr.FsHeaderHash[0] = ncacrypto.SHA256(sectPlainBuf)
	archPlainBuf, err := encodeStruct(&archHdr)
	require.NoError(t, err)
	archEncBuf := make([]byte, HeaderLength)
	require.NoError(t, headerXTS.Encrypt(archEncBuf, archPlainBuf, 0))
	copy(archive[0:], archEncBuf)

	provider := keys.NewStaticProvider(h0).WithKAEK(kaekIndex, keyGeneration, kaek)

	c, err := NewContext(blockreader.NewMemReader(archive), provider, noTickets{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, FormatV0, c.Format())

	s := c.Section(0)
	require.NotNil(t, s)
	assert.Equal(t, SectionV0RomFS, s.Type())
	assert.Equal(t, EncryptionXTS, s.Encryption())

	out := make([]byte, contentSize)
	require.NoError(t, s.Read(out, headerSpan))
	assert.Equal(t, blob, out)
}

// TestNewContextPatchRomFSVsRomFSDisambiguation is the regression case for
// deriveSectionType's RomFS split: it must come from encryption_type ==
// AesCtrEx, not from sparse-layer presence, so one CTR-Ex section with no
// sparse layer resolves to PatchRomFS and one plain-CTR section also with
// no sparse layer resolves to RomFS — a CTR-Ex-without-sparse and a
// CTR-without-sparse fixture driven through the real NewContext parsing
// path, not hand-constructed Context/Section structs.
func TestNewContextPatchRomFSVsRomFSDisambiguation(t *testing.T) {
	const kaekIndex, keyGeneration = 3, 2

	var h0 [32]byte
	for i := range h0 {
		h0[i] = byte(i + 4)
	}
	var kaek [16]byte
	for i := range kaek {
		kaek[i] = byte(i + 0x70)
	}
	var ctrKeyPlain [16]byte
	for i := range ctrKeyPlain {
		ctrKeyPlain[i] = byte(i + 0xC0)
	}
	ctrKeyCipher, err := ncacrypto.ECBEncryptBlock(kaek, ctrKeyPlain)
	require.NoError(t, err)

	headerXTS, err := ncacrypto.NewXTSCipher(h0)
	require.NoError(t, err)

	// a degenerate 6-level integrity tree, 32 bytes per level, for each
	// of the two sections.
	const levelSize = SHA256Size
	const dataSize = 0x40
	const sectionContentSize = levelSize*5 + dataSize

	buildIntegrityBlob := func() ([]byte, rawHierarchicalIntegrity) {
		data := sequentialBytes(dataSize)
		h4 := ncacrypto.SHA256(data)
		h3 := ncacrypto.SHA256(h4[:])
		h2 := ncacrypto.SHA256(h3[:])
		h1 := ncacrypto.SHA256(h2[:])
		h0Hash := ncacrypto.SHA256(h1[:])
		master := ncacrypto.SHA256(h0Hash[:])

		blob := make([]byte, sectionContentSize)
		copy(blob[0*levelSize:], h0Hash[:])
		copy(blob[1*levelSize:], h1[:])
		copy(blob[2*levelSize:], h2[:])
		copy(blob[3*levelSize:], h3[:])
		copy(blob[4*levelSize:], h4[:])
		copy(blob[5*levelSize:], data)

		var raw rawHierarchicalIntegrity
		raw.MasterHash = master
		for i := 0; i < 5; i++ {
			raw.Levels[i] = rawIntegrityLevel{BlockOrder: 5, Offset: uint64(i) * levelSize, Size: levelSize}
		}
		raw.Levels[5] = rawIntegrityLevel{BlockOrder: 6, Offset: levelSize * 5, Size: dataSize}
		return blob, raw
	}

	blob0, raw0 := buildIntegrityBlob()
	blob1, raw1 := buildIntegrityBlob()

	// fs_info sector math needs each section's span rounded up to a whole
	// SectorMultiplier even though the CTR content itself has no alignment
	// requirement, so each section gets a full sector-aligned slot and
	// only its first sectionContentSize bytes are meaningful.
	const sectionSlot = 0x200
	const section0Offset = HeaderLength + SectionCount*SectionHeaderLength
	const section1Offset = section0Offset + sectionSlot
	archiveSize := section1Offset + sectionSlot

	var upperIV0, upperIV1 [8]byte
	copy(upperIV0[:], []byte{1, 1, 1, 1, 1, 1, 1, 1})
	copy(upperIV1[:], []byte{2, 2, 2, 2, 2, 2, 2, 2})

	encryptSection := func(blob []byte, absOffset int64, upperIV [8]byte, ctrVal *uint32) []byte {
		var ctr [16]byte
		if ctrVal != nil {
			ctr = ncacrypto.CTRExCounter(upperIV, *ctrVal, absOffset)
		} else {
			ctr = ncacrypto.CTRCounter(upperIV, absOffset)
		}
		stream, err := ncacrypto.NewCTRStream(ctrKeyPlain, ctr)
		require.NoError(t, err)
		out := make([]byte, len(blob))
		stream.XORKeyStream(out, blob)
		return out
	}

	// section 0: RomFS + hierarchical-integrity + AesCtrEx, no sparse
	// layer -> PatchRomFS.
	var ctrVal0 uint32 = 0
	cipher0 := encryptSection(blob0, section0Offset, upperIV0, &ctrVal0)

	var sectHdr0 rawSectionHeader
	sectHdr0.FsType = fsTypeRomFS
	sectHdr0.HashType = hashTypeIntegrity
	sectHdr0.EncryptionType = cryptoTypeCTREx
	sectHdr0.AesCTRUpperIV = upperIV0
	hashDataBuf0, err := encodeStruct(&raw0)
	require.NoError(t, err)
	copy(sectHdr0.HashData[:], hashDataBuf0)
	sectPlainBuf0, err := encodeStruct(&sectHdr0)
	require.NoError(t, err)
	sectEncBuf0 := make([]byte, SectionHeaderLength)
	require.NoError(t, headerXTS.Encrypt(sectEncBuf0, sectPlainBuf0, 2))

	// section 1: RomFS + hierarchical-integrity + plain AesCtr, no sparse
	// layer -> RomFS.
	cipher1 := encryptSection(blob1, section1Offset, upperIV1, nil)

	var sectHdr1 rawSectionHeader
	sectHdr1.FsType = fsTypeRomFS
	sectHdr1.HashType = hashTypeIntegrity
	sectHdr1.EncryptionType = cryptoTypeCTR
	sectHdr1.AesCTRUpperIV = upperIV1
	hashDataBuf1, err := encodeStruct(&raw1)
	require.NoError(t, err)
	copy(sectHdr1.HashData[:], hashDataBuf1)
	sectPlainBuf1, err := encodeStruct(&sectHdr1)
	require.NoError(t, err)
	sectEncBuf1 := make([]byte, SectionHeaderLength)
	require.NoError(t, headerXTS.Encrypt(sectEncBuf1, sectPlainBuf1, 3))

	archive := make([]byte, archiveSize)
	copy(archive[HeaderLength:], sectEncBuf0)
	copy(archive[HeaderLength+SectionHeaderLength:], sectEncBuf1)
	copy(archive[section0Offset:], cipher0)
	copy(archive[section1Offset:], cipher1)

	var archHdr rawHeader
	archHdr.Magic = MagicNCA3
	archHdr.ContentSize = uint64(archiveSize)
	archHdr.KeyAreaKeyIndex = kaekIndex
	archHdr.KeyGeneration = keyGeneration
	archHdr.KeyArea[2] = ctrKeyCipher
	archHdr.FsEntries[0] = rawFsEntry{StartSector: uint32(section0Offset / SectorMultiplier), EndSector: uint32(section1Offset / SectorMultiplier)}
	archHdr.FsEntries[1] = rawFsEntry{StartSector: uint32(section1Offset / SectorMultiplier), EndSector: uint32(archiveSize / SectorMultiplier)}
	archHdr.FsHeaderHash[0] = ncacrypto.SHA256(sectPlainBuf0)
	archHdr.FsHeaderHash[1] = ncacrypto.SHA256(sectPlainBuf1)
	archPlainBuf, err := encodeStruct(&archHdr)
	require.NoError(t, err)
	archEncBuf := make([]byte, HeaderLength)
	require.NoError(t, headerXTS.Encrypt(archEncBuf, archPlainBuf, 0))
	copy(archive[0:], archEncBuf)

	provider := keys.NewStaticProvider(h0).WithKAEK(kaekIndex, keyGeneration, kaek)

	c, err := NewContext(blockreader.NewMemReader(archive), provider, noTickets{}, Options{})
	require.NoError(t, err)

	s0 := c.Section(0)
	require.NotNil(t, s0)
	assert.Equal(t, SectionPatchRomFS, s0.Type())
	assert.Equal(t, EncryptionCTREx, s0.Encryption())
	assert.False(t, s0.IsSparse())

	s1 := c.Section(1)
	require.NotNil(t, s1)
	assert.Equal(t, SectionRomFS, s1.Type())
	assert.Equal(t, EncryptionCTR, s1.Encryption())
	assert.False(t, s1.IsSparse())
}
