// Package ncacrypto implements the crypto primitives the archive format
// layers on top of: AES-128 in ECB (key area), CTR and CTR-Ex (section
// payloads), a console-specific XTS variant (header and XTS sections),
// RSA-2048 PSS-SHA256 verification, and SHA-256.
package ncacrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
)

const (
	// CTRBlockSize is the AES-CTR/CTR-Ex block size in bytes.
	CTRBlockSize = 0x10
	// XTSSectorSize is the console XTS sector size in bytes.
	XTSSectorSize = 0x200
)

// ECBDecryptBlock decrypts a single 16-byte block under AES-128-ECB. The
// key-area slots are always exactly one block, so the engine never needs
// anything more general than this. There is no ecosystem ECB
// implementation to call into: it is deliberately absent from both the
// standard library and golang.org/x/crypto, so every console-format
// toolchain open-codes it directly over a cipher.Block.
func ECBDecryptBlock(key, in [16]byte) ([16]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return [16]byte{}, fmt.Errorf("ncacrypto: new AES cipher: %w", err)
	}
	var out [16]byte
	block.Decrypt(out[:], in[:])
	return out, nil
}

// ECBEncryptBlock is the encrypt-direction counterpart of ECBDecryptBlock.
func ECBEncryptBlock(key, in [16]byte) ([16]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return [16]byte{}, fmt.Errorf("ncacrypto: new AES cipher: %w", err)
	}
	var out [16]byte
	block.Encrypt(out[:], in[:])
	return out, nil
}

// CTRCounter builds the big-endian 16-byte CTR/CTR-Ex counter seed for an
// absolute content offset: the top 8 bytes are the section's upper IV, the
// bottom 8 bytes are the 16-byte-block index (offset/16) in big-endian.
//
// For CTR-Ex, the caller overwrites the top 4 bytes of the upper half
// (bytes [4:8) of the 16-byte IV) with a per-range generation value before
// calling this — see CTRExCounter.
func CTRCounter(upperIV [8]byte, contentOffset int64) [16]byte {
	var ctr [16]byte
	copy(ctr[:8], upperIV[:])
	binary.BigEndian.PutUint64(ctr[8:], uint64(contentOffset)/CTRBlockSize)
	return ctr
}

// CTRExCounter is CTRCounter with the upper 32 bits of the upper IV
// replaced by the caller-supplied generation value (ctrVal), as used when
// addressing a BKTR bucket table or applying a patch-RomFS generation.
func CTRExCounter(upperIV [8]byte, ctrVal uint32, contentOffset int64) [16]byte {
	iv := upperIV
	binary.BigEndian.PutUint32(iv[4:8], ctrVal)
	return CTRCounter(iv, contentOffset)
}

// NewCTRStream returns a cipher.Stream seeded with counter over key. CTR is
// symmetric: the same stream decrypts and encrypts.
func NewCTRStream(key [16]byte, counter [16]byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("ncacrypto: new AES cipher: %w", err)
	}
	return cipher.NewCTR(block, counter[:]), nil
}
