package nca

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nxdt-go/ncatool/pkg/blockreader"
	"github.com/nxdt-go/ncatool/pkg/ncacrypto"
)

func sequentialBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func newTestArchive(size int64, reader blockreader.Reader) *Context {
	return &Context{reader: reader, size: size}
}

// TestCTRFastPath is scenario S2: an aligned read returns the expected
// plaintext.
func TestCTRFastPath(t *testing.T) {
	var key [16]byte
	for i := range key {
		key[i] = byte(i + 1)
	}
	var upperIV [8]byte
	copy(upperIV[:], []byte{0xDE, 0xAD, 0xBE, 0xEF, 0, 0, 0, 0})

	const sectionOffset = 0x8000
	const archiveSize = sectionOffset + 0x2000

	plain := sequentialBytes(0x200)
	archive := make([]byte, archiveSize)

	contentOffset := int64(sectionOffset + 0x1000)
	ctr := ncacrypto.CTRCounter(upperIV, contentOffset)
	stream, err := ncacrypto.NewCTRStream(key, ctr)
	require.NoError(t, err)
	cipherText := make([]byte, len(plain))
	stream.XORKeyStream(cipherText, plain)
	copy(archive[contentOffset:], cipherText)

	reader := blockreader.NewMemReader(archive)
	c := newTestArchive(archiveSize, reader)
	s := &Section{
		archive: c, index: 1, encryption: EncryptionCTR,
		offset: sectionOffset, size: 0x2000,
		upperIV: upperIV, ctrKey: key, hasCTRKey: true,
	}

	out := make([]byte, 0x200)
	require.NoError(t, s.Read(out, 0x1000))
	assert.Equal(t, plain, out)
}

// TestCTRSlowPathMatchesFastPath is scenario S3: an unaligned sub-read
// returns the same bytes as the corresponding slice of the aligned read.
func TestCTRSlowPathMatchesFastPath(t *testing.T) {
	var key [16]byte
	for i := range key {
		key[i] = byte(i + 9)
	}
	var upperIV [8]byte
	copy(upperIV[:], []byte{1, 2, 3, 4, 5, 6, 7, 8})

	const sectionOffset = 0x8000
	const archiveSize = sectionOffset + 0x2000

	plain := sequentialBytes(0x200)
	archive := make([]byte, archiveSize)
	contentOffset := int64(sectionOffset + 0x1000)
	ctr := ncacrypto.CTRCounter(upperIV, contentOffset)
	stream, err := ncacrypto.NewCTRStream(key, ctr)
	require.NoError(t, err)
	cipherText := make([]byte, len(plain))
	stream.XORKeyStream(cipherText, plain)
	copy(archive[contentOffset:], cipherText)

	reader := blockreader.NewMemReader(archive)
	c := newTestArchive(archiveSize, reader)
	s := &Section{
		archive: c, index: 1, encryption: EncryptionCTR,
		offset: sectionOffset, size: 0x2000,
		upperIV: upperIV, ctrKey: key, hasCTRKey: true,
	}

	fast := make([]byte, 0x200)
	require.NoError(t, s.Read(fast, 0x1000))

	slow := make([]byte, 0x100)
	require.NoError(t, s.Read(slow, 0x1005))
	assert.Equal(t, fast[0x05:0x105], slow)
}

// TestXTSMisalignedRead is scenario S4: an unaligned XTS read returns the
// expected slice of the known plaintext.
func TestXTSMisalignedRead(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i + 3)
	}
	xts, err := ncacrypto.NewXTSCipher(key)
	require.NoError(t, err)

	const sectionOffset = 0
	const sectionSize = ncacrypto.XTSSectorSize * 4
	plain := sequentialBytes(sectionSize)

	cipherText := make([]byte, sectionSize)
	require.NoError(t, xts.Encrypt(cipherText, plain, 0))

	reader := blockreader.NewMemReader(cipherText)
	c := newTestArchive(sectionSize, reader)
	s := &Section{
		archive: c, index: 0, encryption: EncryptionXTS,
		offset: sectionOffset, size: sectionSize,
		xts: xts, hasXTSKey: true,
	}

	out := make([]byte, 0x77)
	require.NoError(t, s.Read(out, 0x123))
	assert.Equal(t, plain[0x123:0x123+0x77], out)
}

func TestEncryptBlockRoundTripsThroughRead(t *testing.T) {
	var key [16]byte
	for i := range key {
		key[i] = byte(i + 5)
	}
	var upperIV [8]byte

	const sectionOffset = 0x200
	const sectionSize = 0x1000
	archive := make([]byte, sectionOffset+sectionSize)

	reader := blockreader.NewMemReader(archive)
	c := newTestArchive(int64(len(archive)), reader)
	s := &Section{
		archive: c, index: 0, encryption: EncryptionCTR,
		offset: sectionOffset, size: sectionSize,
		upperIV: upperIV, ctrKey: key, hasCTRKey: true,
	}

	plain := []byte("patched bytes, not block aligned")
	cipher, absOffset, err := s.EncryptBlock(plain, 0x101)
	require.NoError(t, err)

	// splice the ciphertext span back into the archive and confirm a
	// fresh Read recovers the plaintext.
	copy(archive[absOffset:absOffset+int64(len(cipher))], cipher)

	out := make([]byte, len(plain))
	require.NoError(t, s.Read(out, 0x101))
	assert.Equal(t, plain, out)
}
