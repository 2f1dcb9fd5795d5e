package shared

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nxdt-go/ncatool/pkg/blockreader"
	"github.com/nxdt-go/ncatool/pkg/keys"
	"github.com/nxdt-go/ncatool/pkg/nca"
)

// CurrentKeys is the key provider loaded by InitConfig. Every subcommand
// that opens an archive goes through it rather than reading the
// configuration file itself.
var CurrentKeys *keys.ConfigProvider

// InitConfig loads the key-set file named by --config, once.
func InitConfig() error {
	if CurrentKeys != nil {
		return nil
	}
	if ArgConfig == "" {
		return errors.New("--config not specified")
	}
	provider, err := keys.LoadConfigProvider(ArgConfig)
	if err != nil {
		return err
	}
	CurrentKeys = provider
	return nil
}

// NoTicketProvider always reports no title key available: ticket
// acquisition is out of this module's scope (spec.md §1 Non-goals), so
// every rights-id archive opened from the CLI is treated as having no
// resolvable title key.
type NoTicketProvider struct{}

func (NoTicketProvider) Lookup(rightsID [16]byte, isFromRemovable bool) ([16]byte, bool) {
	return [16]byte{}, false
}

// DeriveContentID recovers the 16-byte content id from path's basename
// when it looks like the usual <32 hex chars>.nca naming convention, and
// otherwise mints a fresh random one — matching the reference
// implementation's file-name-derived content id (spec.md §4.1's Options
// doc), with a uuid fallback for arbitrarily-named inputs.
func DeriveContentID(path string) [16]byte {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var id [16]byte
	if decoded, err := hex.DecodeString(base); err == nil && len(decoded) == 16 {
		copy(id[:], decoded)
		return id
	}
	u := uuid.New()
	copy(id[:], u[:])
	return id
}

// OpenArchive opens path as a block-reader at baseOffset and builds an
// archive context over it using CurrentKeys.
func OpenArchive(path string, baseOffset int64) (*nca.Context, *blockreader.FileReader, error) {
	if err := InitConfig(); err != nil {
		return nil, nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	archiveSize := info.Size() - baseOffset
	if archiveSize <= 0 {
		return nil, nil, fmt.Errorf("%s: base offset %d exceeds file size %d", path, baseOffset, info.Size())
	}
	reader, err := blockreader.OpenFile(path, baseOffset, archiveSize)
	if err != nil {
		return nil, nil, err
	}
	c, err := nca.NewContext(reader, CurrentKeys, NoTicketProvider{}, nca.Options{
		Storage:   nca.StorageBuiltIn,
		ContentID: DeriveContentID(path),
		Logger:    log.Logger,
	})
	if err != nil {
		reader.Close()
		return nil, nil, err
	}
	return c, reader, nil
}

func Fail(err error) error {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(70)
	}
	return err
}
