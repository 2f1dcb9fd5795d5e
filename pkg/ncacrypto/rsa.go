package ncacrypto

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"math/big"
)

// PublicExponent is the fixed RSA public exponent used for every main
// signature modulus in the archive format.
const PublicExponent = 0x010001

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// VerifyPSSSHA256 verifies an RSA-2048-PSS-SHA256 signature over signed
// using the given big-endian modulus and the format's fixed public
// exponent. It reports only whether the signature is valid; a malformed
// modulus or signature length is also reported as "not valid" rather than
// a crypto error, matching spec.md's verify-then-store-a-boolean policy —
// the caller (nca.Context) decides what to do about it.
func VerifyPSSSHA256(signed, signature, modulus []byte) bool {
	if len(modulus) == 0 || len(signature) == 0 {
		return false
	}
	pub := &rsa.PublicKey{
		N: new(big.Int).SetBytes(modulus),
		E: PublicExponent,
	}
	digest := sha256.Sum256(signed)
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto.SHA256}
	err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], signature, opts)
	return err == nil
}
