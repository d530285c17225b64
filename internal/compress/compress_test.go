package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("zlog entry "), 200)
	random := []byte{0x13, 0x9a, 0x01, 0xfe, 0x77}

	for _, typ := range []Type{None, LZ4, ZSTD} {
		t.Run(typ.String(), func(t *testing.T) {
			for _, data := range [][]byte{compressible, random, {}} {
				block, err := Encode(data, typ)
				require.NoError(t, err)

				out, err := Decode(block)
				require.NoError(t, err)
				assert.Equal(t, len(data), len(out))
				assert.True(t, bytes.Equal(data, out))
			}
		})
	}
}

func TestCompressesRepetitiveData(t *testing.T) {
	data := bytes.Repeat([]byte{'a'}, 4096)
	for _, typ := range []Type{LZ4, ZSTD} {
		block, err := Encode(data, typ)
		require.NoError(t, err)
		assert.Equal(t, byte(typ), block[0])
		assert.Less(t, len(block), len(data)/2)
	}
}

func TestIncompressibleStoredRaw(t *testing.T) {
	block, err := Encode([]byte{1, 2, 3}, ZSTD)
	require.NoError(t, err)
	assert.Equal(t, byte(None), block[0])
}

func TestDecodeCorrupt(t *testing.T) {
	_, err := Decode([]byte{1, 2})
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Decode([]byte{byte(None), 9, 0, 0, 0, 'a'})
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Decode([]byte{42, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeRejectsOversizedHeader(t *testing.T) {
	for _, typ := range []Type{None, LZ4, ZSTD} {
		block := []byte{byte(typ), 0xff, 0xff, 0xff, 0xff, 1, 2, 3}
		_, err := Decode(block)
		assert.ErrorIs(t, err, ErrCorrupt, typ.String())
	}

	// Within the global bound but beyond what 3 bytes of LZ4 can expand to.
	block := []byte{byte(LZ4), 0, 0, 0x10, 0, 1, 2, 3}
	_, err := Decode(block)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestZstdDecodeGrowsPastHint(t *testing.T) {
	data := bytes.Repeat([]byte("grow "), 10000)
	block, err := Encode(data, ZSTD)
	require.NoError(t, err)
	require.Equal(t, byte(ZSTD), block[0])

	out, err := Decode(block)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, out))
}

func TestEncodeRejectsOversizedValue(t *testing.T) {
	_, err := Encode(make([]byte, MaxDecodedSize+1), None)
	assert.Error(t, err)
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{None, LZ4, ZSTD} {
		got, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseType("snappy")
	assert.Error(t, err)
}
