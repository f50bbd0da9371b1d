package ble

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

func TestSplit(t *testing.T) {
	msg := bytes.Repeat([]byte("abcdefghij"), 10)

	chunks, err := Split(7, msg, DefaultMTU)
	require.NoError(t, err)
	require.Len(t, chunks, 3) // 39 + 39 + 22

	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), DefaultMTU)
		d, err := ParseDatagram(chunk)
		require.NoError(t, err)
		assert.Equal(t, uint8(7), d.Key)
		assert.Equal(t, uint32(i*39), d.Offset)
		assert.Equal(t, uint32(len(msg)), d.Length)
	}
}

func TestSplit_Invalid(t *testing.T) {
	_, err := Split(0, []byte("x"), HeaderSize)
	assert.True(t, showerr.IsKind(err, showerr.KindEncoding))

	_, err = Split(0, nil, DefaultMTU)
	assert.True(t, showerr.IsKind(err, showerr.KindEncoding))

	_, err = Split(0, make([]byte, MaxMessageSize+1), DefaultMTU)
	assert.True(t, showerr.IsKind(err, showerr.KindEncoding))
}

func TestReassembler_OutOfOrder(t *testing.T) {
	msg := []byte(`{"jsonrpc": "2.0", "method": "get_state", "id": 1}`)
	chunks, err := Split(1, msg, 20)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	r := NewReassembler()
	for i := len(chunks) - 1; i > 0; i-- {
		got, complete, err := r.Add(chunks[i])
		require.NoError(t, err)
		assert.False(t, complete)
		assert.Nil(t, got)
	}
	assert.Equal(t, 1, r.Pending())

	// A retransmitted chunk does not complete the message early.
	_, complete, err := r.Add(chunks[1])
	require.NoError(t, err)
	assert.False(t, complete)

	got, complete, err := r.Add(chunks[0])
	require.NoError(t, err)
	require.True(t, complete)
	assert.Equal(t, msg, got)
	assert.Equal(t, 0, r.Pending())
}

func TestReassembler_InterleavedKeys(t *testing.T) {
	a := bytes.Repeat([]byte("a"), 50)
	b := bytes.Repeat([]byte("b"), 50)
	ca, err := Split(1, a, 30)
	require.NoError(t, err)
	cb, err := Split(2, b, 30)
	require.NoError(t, err)

	r := NewReassembler()
	var done [][]byte
	for i := range ca {
		for _, chunk := range [][]byte{ca[i], cb[i]} {
			msg, complete, err := r.Add(chunk)
			require.NoError(t, err)
			if complete {
				done = append(done, msg)
			}
		}
	}
	assert.Equal(t, [][]byte{a, b}, done)
}

func TestReassembler_LengthChangeRestarts(t *testing.T) {
	r := NewReassembler()
	first, err := Split(3, bytes.Repeat([]byte("x"), 60), 30)
	require.NoError(t, err)
	_, _, err = r.Add(first[0])
	require.NoError(t, err)

	msg, complete, err := r.Add(mustDatagram(t, Datagram{Key: 3, Offset: 0, Length: 2, Payload: []byte("ok")}))
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, []byte("ok"), msg)
}

func TestParseDatagram_Bounds(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short header", []byte{1, 0, 0}},
		{"zero length", mustDatagram(t, Datagram{Length: 0})},
		{"too large", mustDatagram(t, Datagram{Length: MaxMessageSize + 1})},
		{"overrun", mustDatagram(t, Datagram{Offset: 4, Length: 5, Payload: []byte("ab")})},
		{"offset past end", mustDatagram(t, Datagram{Offset: 0xffffffff, Length: 5, Payload: []byte("a")})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDatagram(tt.data)
			assert.True(t, showerr.IsKind(err, showerr.KindEncoding), "got %v", err)

			_, _, err = NewReassembler().Add(tt.data)
			assert.Error(t, err)
		})
	}
}

func mustDatagram(t *testing.T, d Datagram) []byte {
	t.Helper()
	data, err := d.MarshalBinary()
	require.NoError(t, err)
	return data
}
