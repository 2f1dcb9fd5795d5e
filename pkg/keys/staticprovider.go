package keys

// StaticProvider is an in-memory Provider, used by tests and by callers
// that already hold decoded key material rather than a key-set file.
type StaticProvider struct {
	header  [32]byte
	kaeks   map[kaekKey][16]byte
	moduli  map[uint8][]byte
}

type kaekKey struct {
	kaekIndex     uint8
	keyGeneration uint8
}

// NewStaticProvider builds an empty StaticProvider with the given header key.
func NewStaticProvider(headerKey [32]byte) *StaticProvider {
	return &StaticProvider{
		header: headerKey,
		kaeks:  make(map[kaekKey][16]byte),
		moduli: make(map[uint8][]byte),
	}
}

// WithKAEK registers a KAEK and returns the receiver for chaining.
func (p *StaticProvider) WithKAEK(kaekIndex, keyGeneration uint8, key [16]byte) *StaticProvider {
	p.kaeks[kaekKey{kaekIndex, keyGeneration}] = key
	return p
}

// WithSignatureModulus registers a main-signature modulus and returns the
// receiver for chaining.
func (p *StaticProvider) WithSignatureModulus(keyGenerationIndex uint8, modulus []byte) *StaticProvider {
	p.moduli[keyGenerationIndex] = modulus
	return p
}

func (p *StaticProvider) HeaderKey() ([32]byte, error) {
	return p.header, nil
}

func (p *StaticProvider) KAEK(kaekIndex, keyGeneration uint8) ([16]byte, bool) {
	key, ok := p.kaeks[kaekKey{kaekIndex, keyGeneration}]
	return key, ok
}

func (p *StaticProvider) MainSignatureModulus(keyGenerationIndex uint8) ([]byte, bool) {
	modulus, ok := p.moduli[keyGenerationIndex]
	return modulus, ok
}

var _ Provider = (*StaticProvider)(nil)
