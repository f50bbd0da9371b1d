// Package artnet provides Art-Net protocol packet building and parsing for pixel output.
package artnet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// OpCodeDMX is the Art-Net operation code for DMX data.
	OpCodeDMX uint16 = 0x5000
	// ProtocolVersion is the Art-Net protocol version.
	ProtocolVersion uint16 = 14
	// DMXDataLength is the maximum number of DMX channels per universe.
	DMXDataLength = 512
	// HeaderSize is the size of the ArtDMX header preceding the channel data.
	HeaderSize = 18
	// DefaultPort is the standard Art-Net UDP port.
	DefaultPort = 6454
	// PixelsPerUniverse is how many RGB pixels fit in one universe.
	PixelsPerUniverse = DMXDataLength / 3
)

// ArtNetID is the Art-Net packet identifier.
var ArtNetID = []byte{'A', 'r', 't', '-', 'N', 'e', 't', 0x00}

// ErrNotArtDMX is returned by ParseDMXPacket for packets that are not ArtDMX.
var ErrNotArtDMX = errors.New("not an ArtDMX packet")

// BuildDMXPacket creates an Art-Net DMX packet for the specified universe.
// Universe is 1-based. The data length is the channel count rounded up to an
// even number (minimum 2, maximum 512) as ArtDMX requires. Sequence should
// increment for each packet (wrapping after 255) so receivers can reorder.
func BuildDMXPacket(universe int, channels []byte, sequence byte) []byte {
	length := len(channels)
	if length > DMXDataLength {
		length = DMXDataLength
	}
	if length < 2 {
		length = 2
	}
	if length%2 != 0 {
		length++
	}

	packet := make([]byte, HeaderSize+length)
	copy(packet[0:8], ArtNetID)
	binary.LittleEndian.PutUint16(packet[8:10], OpCodeDMX)
	binary.BigEndian.PutUint16(packet[10:12], ProtocolVersion)
	packet[12] = sequence
	packet[13] = 0 // physical port
	binary.LittleEndian.PutUint16(packet[14:16], uint16(universe-1))
	binary.BigEndian.PutUint16(packet[16:18], uint16(length))
	copy(packet[HeaderSize:], channels)

	return packet
}

// DMXPacket is a decoded ArtDMX packet.
type DMXPacket struct {
	Universe int // 1-based
	Sequence byte
	Data     []byte
}

// ParseDMXPacket decodes an ArtDMX packet built by BuildDMXPacket or any other sender.
func ParseDMXPacket(packet []byte) (DMXPacket, error) {
	if len(packet) < HeaderSize || !bytes.Equal(packet[0:8], ArtNetID) {
		return DMXPacket{}, ErrNotArtDMX
	}
	if op := binary.LittleEndian.Uint16(packet[8:10]); op != OpCodeDMX {
		return DMXPacket{}, fmt.Errorf("%w: opcode 0x%04x", ErrNotArtDMX, op)
	}
	length := int(binary.BigEndian.Uint16(packet[16:18]))
	if length > DMXDataLength || HeaderSize+length > len(packet) {
		return DMXPacket{}, fmt.Errorf("artnet: data length %d exceeds packet", length)
	}
	data := make([]byte, length)
	copy(data, packet[HeaderSize:HeaderSize+length])
	return DMXPacket{
		Universe: int(binary.LittleEndian.Uint16(packet[14:16])) + 1,
		Sequence: packet[12],
		Data:     data,
	}, nil
}

// PixelsToChannels packs RGB triplets into per-universe channel buffers of
// at most PixelsPerUniverse pixels each. Pixels never straddle universes.
func PixelsToChannels(pixels [][3]byte) [][]byte {
	if len(pixels) == 0 {
		return nil
	}
	count := (len(pixels) + PixelsPerUniverse - 1) / PixelsPerUniverse
	out := make([][]byte, 0, count)
	for start := 0; start < len(pixels); start += PixelsPerUniverse {
		end := start + PixelsPerUniverse
		if end > len(pixels) {
			end = len(pixels)
		}
		buf := make([]byte, 0, (end-start)*3)
		for _, p := range pixels[start:end] {
			buf = append(buf, p[0], p[1], p[2])
		}
		out = append(out, buf)
	}
	return out
}
