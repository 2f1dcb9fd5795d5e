package nca

import (
	"github.com/nxdt-go/ncatool/pkg/keys"
	"github.com/nxdt-go/ncatool/pkg/ncacrypto"
)

// keyCountForFormat returns how many of the 4 key-area slots a given
// format version actually uses (V0 only ever populates the XTS pair).
func keyCountForFormat(format FormatVersion) int {
	if format == FormatV0 {
		return KeyCountV0
	}
	return KeyCount
}

// decryptKeyArea decrypts the in-header key area. A V0 archive whose
// stored key area hashes to the published plaintext marker is copied
// verbatim (spec.md §4.2, invariant 9 in §8); otherwise each non-zero slot
// up to keyCountForFormat(format) is decrypted with the KAEK resolved by
// (kaekIndex, keyGeneration). An all-zero slot decrypts to zero without
// touching the key provider.
func decryptKeyArea(provider keys.Provider, stored [KeyCount][16]byte, kaekIndex, keyGeneration uint8, format FormatVersion) ([KeyCount][16]byte, error) {
	var out [KeyCount][16]byte

	if format == FormatV0 && ncacrypto.SHA256(flattenKeyArea(stored)) == v0PlaintextKeyAreaMarker {
		return stored, nil
	}

	count := keyCountForFormat(format)
	for i := 0; i < count; i++ {
		if stored[i] == ([16]byte{}) {
			continue
		}
		kaek, ok := provider.KAEK(kaekIndex, keyGeneration)
		if !ok {
			return out, newCryptoErr("nca.decryptKeyArea", "no KAEK for index=%d generation=%d", kaekIndex, keyGeneration)
		}
		plain, err := ncacrypto.ECBDecryptBlock(kaek, stored[i])
		if err != nil {
			return out, newCryptoErr("nca.decryptKeyArea", "slot %d: %w", i, err)
		}
		out[i] = plain
	}
	return out, nil
}

// encryptKeyArea is the encrypt-direction counterpart of decryptKeyArea.
// The V0 plaintext-marker case is the caller's responsibility
// (Context.EncryptHeader skips this call for such a key area), so
// encryptKeyArea always encrypts every populated slot under the KAEK.
func encryptKeyArea(provider keys.Provider, decrypted [KeyCount][16]byte, kaekIndex, keyGeneration uint8, format FormatVersion) ([KeyCount][16]byte, error) {
	var out [KeyCount][16]byte
	count := keyCountForFormat(format)
	for i := 0; i < count; i++ {
		if decrypted[i] == ([16]byte{}) {
			continue
		}
		kaek, ok := provider.KAEK(kaekIndex, keyGeneration)
		if !ok {
			return out, newCryptoErr("nca.encryptKeyArea", "no KAEK for index=%d generation=%d", kaekIndex, keyGeneration)
		}
		cipher, err := ncacrypto.ECBEncryptBlock(kaek, decrypted[i])
		if err != nil {
			return out, newCryptoErr("nca.encryptKeyArea", "slot %d: %w", i, err)
		}
		out[i] = cipher
	}
	return out, nil
}

func flattenKeyArea(ka [KeyCount][16]byte) []byte {
	buf := make([]byte, 0, KeyCount*16)
	for _, slot := range ka {
		buf = append(buf, slot[:]...)
	}
	return buf
}
