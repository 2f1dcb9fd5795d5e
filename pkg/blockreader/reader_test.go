package blockreader_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nxdt-go/ncatool/pkg/blockreader"
)

func TestMemReaderReadAt(t *testing.T) {
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	r := blockreader.NewMemReader(data)
	assert.Equal(t, int64(64), r.Size())

	out := make([]byte, 8)
	require.NoError(t, r.ReadAt(out, 16))
	assert.Equal(t, data[16:24], out)
}

func TestMemReaderOutOfRange(t *testing.T) {
	r := blockreader.NewMemReader(make([]byte, 16))
	assert.Error(t, r.ReadAt(make([]byte, 4), 15))
	assert.Error(t, r.ReadAt(make([]byte, 4), -1))
}
