// Package keys defines the key-material provider the archive engine
// consumes (resolves the header key, per-generation key-area-encryption
// keys, and per-index main-signature moduli) and the ticket provider used
// to resolve a title key from a rights id. Acquisition of the underlying
// key material is out of scope (spec.md §1 Non-goals); this package only
// shapes the lookup contract and a config-file-backed implementation.
package keys

import "fmt"

// Provider resolves the key material an archive context needs.
type Provider interface {
	// HeaderKey returns the 32-byte (two AES-128 halves) XTS key used to
	// decrypt/encrypt the archive header and, for V2/V3 archives, the
	// section headers (V0 section headers use the key-area XTS pair).
	HeaderKey() ([32]byte, error)

	// KAEK returns the 16-byte key-area-encryption key for the given
	// (kaekIndex, keyGeneration) pair, or ok=false if the provider has no
	// such key.
	KAEK(kaekIndex uint8, keyGeneration uint8) (key [16]byte, ok bool)

	// MainSignatureModulus returns the 256-byte RSA-2048 modulus used to
	// verify the archive's main signature for the given
	// main_signature_key_generation index, or ok=false if unavailable.
	MainSignatureModulus(keyGenerationIndex uint8) (modulus []byte, ok bool)
}

// TicketProvider resolves a title key from a rights id, for archives that
// carry a rights id rather than an in-header key area.
type TicketProvider interface {
	// Lookup returns the 16-byte title key for rightsID, or ok=false if
	// no ticket is available. isFromRemovable mirrors spec.md §6's ticket
	// lookup signature (removable-media tickets may be looked up
	// differently than installed ones).
	Lookup(rightsID [16]byte, isFromRemovable bool) (titleKey [16]byte, ok bool)
}

// ErrNoSuchKey is returned by Provider implementations that distinguish
// "not configured" from a structural error, for callers that want an
// error rather than the ok-boolean form.
type ErrNoSuchKey struct {
	What string
}

func (e *ErrNoSuchKey) Error() string {
	return fmt.Sprintf("keys: no such key: %s", e.What)
}
