/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config reads the key-set file the archive engine's key provider
// is backed by: the header key, the key-area-encryption key table indexed
// by (kaek_index, key_generation), and the main-signature modulus table
// indexed by key generation index. Acquiring this key material is outside
// this module's scope; the file format just gives a caller somewhere to
// put whatever it already has.
package config

import (
	"encoding/hex"
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"
)

// KAEKEntry names one key-area-encryption key, keyed by kaek_index and
// key_generation.
type KAEKEntry struct {
	KaekIndex     uint8  `yaml:"kaek_index"`
	KeyGeneration uint8  `yaml:"key_generation"`
	Key           string `yaml:"key"` // 32 hex chars (16 bytes)
}

// SignatureModulusEntry names one main-signature RSA-2048 modulus, keyed
// by the header's main_signature_key_generation field.
type SignatureModulusEntry struct {
	KeyGenerationIndex uint8  `yaml:"key_generation_index"`
	Modulus            string `yaml:"modulus"` // 512 hex chars (256 bytes)
}

// KeySet is the root of the key-set configuration file.
type KeySet struct {
	HeaderKey       string                  `yaml:"header_key"` // 64 hex chars (32 bytes)
	KAEKs           []KAEKEntry             `yaml:"kaeks"`
	SignatureModuli []SignatureModulusEntry `yaml:"signature_moduli"`

	kaekIndex   map[kaekKey][16]byte
	moduliIndex map[uint8][]byte
}

type kaekKey struct {
	kaekIndex     uint8
	keyGeneration uint8
}

// ReadFile loads and indexes a key-set file.
func ReadFile(path string) (*KeySet, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ks := new(KeySet)
	if err := yaml.Unmarshal(data, ks); err != nil {
		return nil, err
	}
	if err := ks.index(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return ks, nil
}

func (ks *KeySet) index() error {
	if ks.HeaderKey != "" {
		if _, err := decodeHexN(ks.HeaderKey, 32); err != nil {
			return fmt.Errorf("header_key: %w", err)
		}
	}
	ks.kaekIndex = make(map[kaekKey][16]byte, len(ks.KAEKs))
	for _, e := range ks.KAEKs {
		key, err := decodeHexN(e.Key, 16)
		if err != nil {
			return fmt.Errorf("kaek index=%d generation=%d: %w", e.KaekIndex, e.KeyGeneration, err)
		}
		var k [16]byte
		copy(k[:], key)
		ks.kaekIndex[kaekKey{e.KaekIndex, e.KeyGeneration}] = k
	}
	ks.moduliIndex = make(map[uint8][]byte, len(ks.SignatureModuli))
	for _, e := range ks.SignatureModuli {
		modulus, err := decodeHexN(e.Modulus, 256)
		if err != nil {
			return fmt.Errorf("signature modulus generation_index=%d: %w", e.KeyGenerationIndex, err)
		}
		ks.moduliIndex[e.KeyGenerationIndex] = modulus
	}
	return nil
}

// HeaderKeyBytes decodes the configured header key.
func (ks *KeySet) HeaderKeyBytes() ([32]byte, error) {
	var out [32]byte
	decoded, err := decodeHexN(ks.HeaderKey, 32)
	if err != nil {
		return out, fmt.Errorf("config: header_key: %w", err)
	}
	copy(out[:], decoded)
	return out, nil
}

// KAEK returns the key-area-encryption key for (kaekIndex, keyGeneration).
func (ks *KeySet) KAEK(kaekIndex, keyGeneration uint8) (key [16]byte, ok bool) {
	key, ok = ks.kaekIndex[kaekKey{kaekIndex, keyGeneration}]
	return key, ok
}

// SignatureModulus returns the main-signature modulus for keyGenerationIndex.
func (ks *KeySet) SignatureModulus(keyGenerationIndex uint8) (modulus []byte, ok bool) {
	modulus, ok = ks.moduliIndex[keyGenerationIndex]
	return modulus, ok
}

func decodeHexN(s string, n int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != n {
		return nil, fmt.Errorf("expected %d bytes, got %d", n, len(b))
	}
	return b, nil
}
