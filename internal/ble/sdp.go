package ble

import (
	"encoding/binary"

	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

// Datagram framing for JSON-RPC over the rpc characteristic. Each write or
// indication carries a 9-byte header [key u8][offset u32][length u32]
// followed by a slice of the message.
const (
	HeaderSize     = 9
	MaxMessageSize = 64 << 10
)

// Datagram is one framed chunk of a message.
type Datagram struct {
	Key     uint8
	Offset  uint32
	Length  uint32
	Payload []byte
}

// MarshalBinary encodes the datagram.
func (d Datagram) MarshalBinary() ([]byte, error) {
	out := make([]byte, HeaderSize, HeaderSize+len(d.Payload))
	out[0] = d.Key
	binary.BigEndian.PutUint32(out[1:5], d.Offset)
	binary.BigEndian.PutUint32(out[5:9], d.Length)
	return append(out, d.Payload...), nil
}

// ParseDatagram decodes and bounds-checks one datagram.
func ParseDatagram(data []byte) (Datagram, error) {
	if len(data) < HeaderSize {
		return Datagram{}, showerr.New(showerr.KindEncoding, "datagram is %d bytes, header needs %d", len(data), HeaderSize)
	}
	d := Datagram{
		Key:     data[0],
		Offset:  binary.BigEndian.Uint32(data[1:5]),
		Length:  binary.BigEndian.Uint32(data[5:9]),
		Payload: data[HeaderSize:],
	}
	if d.Length == 0 || d.Length > MaxMessageSize {
		return Datagram{}, showerr.New(showerr.KindEncoding, "message length %d out of range 1-%d", d.Length, MaxMessageSize)
	}
	if uint64(d.Offset)+uint64(len(d.Payload)) > uint64(d.Length) {
		return Datagram{}, showerr.New(showerr.KindEncoding, "datagram [%d, %d) overruns message length %d",
			d.Offset, uint64(d.Offset)+uint64(len(d.Payload)), d.Length)
	}
	return d, nil
}

// Split frames msg into datagrams no larger than mtu bytes.
func Split(key uint8, msg []byte, mtu int) ([][]byte, error) {
	if mtu <= HeaderSize {
		return nil, showerr.New(showerr.KindEncoding, "MTU %d leaves no room for payload", mtu)
	}
	if len(msg) == 0 || len(msg) > MaxMessageSize {
		return nil, showerr.New(showerr.KindEncoding, "message length %d out of range 1-%d", len(msg), MaxMessageSize)
	}
	chunk := mtu - HeaderSize
	out := make([][]byte, 0, (len(msg)+chunk-1)/chunk)
	for off := 0; off < len(msg); off += chunk {
		end := off + chunk
		if end > len(msg) {
			end = len(msg)
		}
		data, _ := Datagram{Key: key, Offset: uint32(off), Length: uint32(len(msg)), Payload: msg[off:end]}.MarshalBinary()
		out = append(out, data)
	}
	return out, nil
}

type partial struct {
	data      []byte
	have      []bool
	remaining int
}

// Reassembler rebuilds messages from datagrams, one in-flight message per key.
// It is not safe for concurrent use.
type Reassembler struct {
	pending map[uint8]*partial
}

// NewReassembler creates an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{pending: make(map[uint8]*partial)}
}

// Add feeds one datagram. It returns the message once every byte has arrived.
// A datagram announcing a different length for a pending key starts over.
func (r *Reassembler) Add(data []byte) ([]byte, bool, error) {
	d, err := ParseDatagram(data)
	if err != nil {
		return nil, false, err
	}

	p, ok := r.pending[d.Key]
	if !ok || len(p.data) != int(d.Length) {
		p = &partial{
			data:      make([]byte, d.Length),
			have:      make([]bool, d.Length),
			remaining: int(d.Length),
		}
		r.pending[d.Key] = p
	}

	for i, b := range d.Payload {
		at := int(d.Offset) + i
		p.data[at] = b
		if !p.have[at] {
			p.have[at] = true
			p.remaining--
		}
	}
	if p.remaining > 0 {
		return nil, false, nil
	}
	delete(r.pending, d.Key)
	return p.data, true, nil
}

// Pending returns the number of incomplete messages.
func (r *Reassembler) Pending() int {
	return len(r.pending)
}
