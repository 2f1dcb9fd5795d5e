package keys

import (
	"fmt"

	"github.com/nxdt-go/ncatool/config"
)

// ConfigProvider implements Provider over a config.KeySet loaded from a
// key-set YAML file.
type ConfigProvider struct {
	ks *config.KeySet
}

// NewConfigProvider wraps an already-loaded key set as a Provider.
func NewConfigProvider(ks *config.KeySet) *ConfigProvider {
	return &ConfigProvider{ks: ks}
}

// LoadConfigProvider reads path as a key-set file and wraps it.
func LoadConfigProvider(path string) (*ConfigProvider, error) {
	ks, err := config.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	return NewConfigProvider(ks), nil
}

func (p *ConfigProvider) HeaderKey() ([32]byte, error) {
	key, err := p.ks.HeaderKeyBytes()
	if err != nil {
		return key, fmt.Errorf("keys: header key: %w", err)
	}
	return key, nil
}

func (p *ConfigProvider) KAEK(kaekIndex, keyGeneration uint8) ([16]byte, bool) {
	return p.ks.KAEK(kaekIndex, keyGeneration)
}

func (p *ConfigProvider) MainSignatureModulus(keyGenerationIndex uint8) ([]byte, bool) {
	return p.ks.SignatureModulus(keyGenerationIndex)
}

var _ Provider = (*ConfigProvider)(nil)
