package ncacrypto

import (
	"crypto/aes"
	"fmt"

	"golang.org/x/crypto/xts"
)

// XTSCipher wraps golang.org/x/crypto/xts.Cipher with the console
// convention of a fixed 0x200-byte sector size and a caller-chosen
// starting sector number, decrypting or encrypting one XTS tweak per
// sector rather than treating the whole span as one giant sector (which
// is the stock x/crypto/xts behavior for inputs longer than one sector).
//
// XTS needs two independent AES-128 keys (the "key-1"/"key-2" pair from
// key-area slots 0 and 1), so direction-specific ciphers are built once
// and reused; x/crypto/xts.Cipher has no separate decrypt/encrypt state,
// it just exposes both directions off one instance.
type XTSCipher struct {
	c *xts.Cipher
}

// NewXTSCipher builds an XTS cipher from a 32-byte key (two concatenated
// AES-128 halves, matching key-area slots 0 and 1 or the header key).
func NewXTSCipher(key [32]byte) (*XTSCipher, error) {
	c, err := xts.NewCipher(aes.NewCipher, key[:])
	if err != nil {
		return nil, fmt.Errorf("ncacrypto: new XTS cipher: %w", err)
	}
	return &XTSCipher{c: c}, nil
}

// Decrypt decrypts in place (dst may alias src), starting at the given
// sector number and advancing one sector number per 0x200 bytes.
// len(data) must be a multiple of XTSSectorSize.
func (x *XTSCipher) Decrypt(dst, src []byte, startSector uint64) error {
	return x.crypt(dst, src, startSector, false)
}

// Encrypt is the encrypt-direction counterpart of Decrypt.
func (x *XTSCipher) Encrypt(dst, src []byte, startSector uint64) error {
	return x.crypt(dst, src, startSector, true)
}

func (x *XTSCipher) crypt(dst, src []byte, startSector uint64, encrypt bool) error {
	if len(src) != len(dst) {
		return fmt.Errorf("ncacrypto: xts src/dst length mismatch (%d != %d)", len(src), len(dst))
	}
	if len(src)%XTSSectorSize != 0 {
		return fmt.Errorf("ncacrypto: xts length %d is not a multiple of sector size %#x", len(src), XTSSectorSize)
	}
	sector := startSector
	for off := 0; off < len(src); off += XTSSectorSize {
		chunkSrc := src[off : off+XTSSectorSize]
		chunkDst := dst[off : off+XTSSectorSize]
		if encrypt {
			x.c.Encrypt(chunkDst, chunkSrc, sector)
		} else {
			x.c.Decrypt(chunkDst, chunkSrc, sector)
		}
		sector++
	}
	return nil
}
