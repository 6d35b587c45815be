// Package packet implements the outer framed packet format: a fixed head,
// a 16-bit size field, an ordered sequence of tagged wire values, and a
// fixed tail. The size field is authoritative — decoding consumes exactly
// size-6 bytes of payload regardless of what the payload bytes look like.
package packet

import (
	"encoding/binary"
	"fmt"
	"io"

	"wdbg/wdbgerr"
	"wdbg/wire"
)

// Head and Tail are the packet's fixed framing bytes.
var (
	Head = [2]byte{0xDE, 0xAD}
	Tail = [2]byte{0xBE, 0xEF}
)

// MinEncodedSize is the smallest a packet can be: head + size + tail, with
// an empty payload.
const MinEncodedSize = len(Head) + 2 + len(Tail)

// Packet is an ordered sequence of tagged values framed by Head/Tail and a
// size prefix.
type Packet struct {
	Payload []wire.Value
}

// New returns an empty packet ready for values to be appended.
func New() *Packet {
	return &Packet{}
}

// Append adds a value to the end of the payload and returns the packet for
// chaining, mirroring how the game's own packets are built up field by field.
func (p *Packet) Append(v wire.Value) *Packet {
	p.Payload = append(p.Payload, v)
	return p
}

// EncodedSize is the total wire size of the packet, size field included.
func (p *Packet) EncodedSize() int {
	total := MinEncodedSize
	for _, v := range p.Payload {
		total += v.EncodedSize()
	}
	return total
}

// Encode writes head, size, payload values in order, then tail.
func (p *Packet) Encode(w io.Writer) error {
	if _, err := w.Write(Head[:]); err != nil {
		return fmt.Errorf("packet: write head: %w", err)
	}

	size := p.EncodedSize()
	if size > 1<<16-1 {
		return fmt.Errorf("packet: encoded size %d exceeds uint16 size field", size)
	}
	var sizeBuf [2]byte
	binary.BigEndian.PutUint16(sizeBuf[:], uint16(size))
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return fmt.Errorf("packet: write size: %w", err)
	}

	for i, v := range p.Payload {
		if err := v.Encode(w); err != nil {
			return fmt.Errorf("packet: encode payload value %d: %w", i, err)
		}
	}

	if _, err := w.Write(Tail[:]); err != nil {
		return fmt.Errorf("packet: write tail: %w", err)
	}
	return nil
}

// Decode reads one packet from r. The announced size is authoritative: the
// decoder keeps pulling values until the remaining byte budget saturates to
// zero, then expects the tail immediately — it never trusts a byte pattern
// that merely looks like the tail to mean "stop early".
func Decode(r io.Reader) (*Packet, error) {
	var headBuf [2]byte
	if _, err := io.ReadFull(r, headBuf[:]); err != nil {
		return nil, fmt.Errorf("packet: read head: %w", err)
	}
	if headBuf != Head {
		return nil, wdbgerr.Wrap(wdbgerr.KindFraming, fmt.Errorf("packet: invalid head %x", headBuf))
	}

	var sizeBuf [2]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, fmt.Errorf("packet: read size: %w", err)
	}
	size := binary.BigEndian.Uint16(sizeBuf[:])
	if int(size) < MinEncodedSize {
		return nil, wdbgerr.Wrap(wdbgerr.KindFraming, fmt.Errorf("packet: announced size %d smaller than minimum %d", size, MinEncodedSize))
	}

	remaining := int(size) - MinEncodedSize
	p := New()
	for remaining > 0 {
		v, err := wire.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("packet: decode payload value: %w", err)
		}
		p.Payload = append(p.Payload, v)
		remaining -= v.EncodedSize()
		if remaining < 0 {
			remaining = 0
		}
	}

	var tailBuf [2]byte
	if _, err := io.ReadFull(r, tailBuf[:]); err != nil {
		return nil, fmt.Errorf("packet: read tail: %w", err)
	}
	if tailBuf != Tail {
		return nil, wdbgerr.Wrap(wdbgerr.KindFraming, fmt.Errorf("packet: invalid tail %x", tailBuf))
	}

	return p, nil
}
