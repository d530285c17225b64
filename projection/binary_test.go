package projection

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryRoundTrip(t *testing.T) {
	p, err := New("orders.log", 4)
	require.NoError(t, err)
	p, err = p.Next(100, 8)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.WriteBinary(&buf))

	p2, err := ReadBinary(&buf)
	require.NoError(t, err)

	assert.Equal(t, CurrentVersion, p2.Version)
	assert.Equal(t, "orders.log", p2.LogName)
	assert.Equal(t, uint64(1), p2.Epoch)
	assert.Equal(t, p.CreatedAt.UnixNano(), p2.CreatedAt.UnixNano())
	assert.Equal(t, []Stripe{
		{Epoch: 0, Start: 0, Width: 4},
		{Epoch: 1, Start: 100, Width: 8},
	}, p2.Stripes)
}

func TestReadBinaryRejectsCorruption(t *testing.T) {
	p, err := New("orders.log", 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.WriteBinary(&buf))
	good := buf.Bytes()

	tests := []struct {
		name   string
		mutate func(b []byte) []byte
		want   error
	}{
		{"Truncated", func(b []byte) []byte { return b[:10] }, ErrCorrupt},
		{"BadMagic", func(b []byte) []byte { b[0] ^= 0xff; return b }, ErrCorrupt},
		{"BadVersion", func(b []byte) []byte { b[4] = 9; return b }, ErrIncompatibleVersion},
		{"FlippedPayloadBit", func(b []byte) []byte { b[len(b)-1] ^= 0x01; return b }, ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.mutate(append([]byte(nil), good...))
			_, err := ReadBinary(bytes.NewReader(b))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidate(t *testing.T) {
	_, err := New("orders.log", 0)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = New("", 1)
	assert.ErrorIs(t, err, ErrCorrupt)

	p, err := New("orders.log", 2)
	require.NoError(t, err)

	_, err = p.Next(0, 2)
	assert.NoError(t, err, "a stripe may start where the previous one did")

	p2, err := p.Next(10, 2)
	require.NoError(t, err)
	_, err = p2.Next(5, 2)
	assert.ErrorIs(t, err, ErrCorrupt, "stripe starts must not decrease")

	bad := p2.Clone()
	bad.Epoch = 7
	assert.ErrorIs(t, bad.Validate(), ErrCorrupt)
}

func TestCloneIsIndependent(t *testing.T) {
	p, err := New("orders.log", 2)
	require.NoError(t, err)

	c := p.Clone()
	c.Stripes[0].Width = 9
	assert.Equal(t, uint32(2), p.Stripes[0].Width)
}

func TestIsProjectionBlob(t *testing.T) {
	assert.True(t, IsProjectionBlob("orders.log/PROJECTION-000003.bin"))
	assert.False(t, IsProjectionBlob("orders.log/CURRENT"))
	assert.False(t, IsProjectionBlob("orders.log/PROJECTION-000003.bin.staged-x"))
}
