// Package wire implements the tagged primitive codec used by the game's
// debug protocol: every value on the wire is preceded by a 2-byte type tag,
// and decoding an unrecognized tag must not lose information (it round-trips
// back out byte for byte).
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"wdbg/wdbgerr"
)

// Tag is the 2-byte type marker that precedes every encoded primitive.
type Tag [2]byte

// Known tags, lifted from traces of the game's own encoder. The exact
// byte values carry no meaning beyond "the game recognizes them" — they
// are not derived from any documented format.
var (
	TagInt8       = Tag{0x81, 0x08}
	TagInt16      = Tag{0x81, 0x16}
	TagInt32      = Tag{0x81, 0x32}
	TagUInt32     = Tag{0x71, 0x32}
	TagInt64      = Tag{0x81, 0x64}
	TagStringUTF8 = Tag{0xAC, 0x08}
	TagStringUTF16 = Tag{0x9C, 0x16}
)

// Value is a single tagged primitive as it appears in a packet payload.
// Implementations must be able to round-trip: Decode(Encode(v)) == v, and
// for the Unknown variant, Encode(Decode(Encode(v))) == Encode(v).
type Value interface {
	// Tag returns this value's 2-byte wire tag.
	Tag() Tag
	// EncodedSize returns the number of bytes Encode will write, tag included.
	EncodedSize() int
	// Encode writes the tag followed by the value's content.
	Encode(w io.Writer) error
}

// Decode reads one tagged value from r. An unrecognized tag produces an
// Unknown value carrying the raw tag bytes — this is required for the
// round-trip property since real packets occasionally carry payload
// elements this client does not model.
//
// Every error this returns is tagged wdbgerr.KindDecode: a malformed value
// (a truncated string, a mismatched inner length tag, an EOF mid-value) is
// a property of the bytes, not the connection, and callers must be able to
// tell the two apart.
func Decode(r io.Reader) (Value, error) {
	var tagBuf [2]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		return nil, wdbgerr.Wrap(wdbgerr.KindDecode, fmt.Errorf("wire: read tag: %w", err))
	}
	tag := Tag(tagBuf)

	switch tag {
	case TagInt8:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, wdbgerr.Wrap(wdbgerr.KindDecode, fmt.Errorf("wire: read int8: %w", err))
		}
		return Int8(int8(b[0])), nil
	case TagInt16:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, wdbgerr.Wrap(wdbgerr.KindDecode, fmt.Errorf("wire: read int16: %w", err))
		}
		return Int16(int16(binary.BigEndian.Uint16(b[:]))), nil
	case TagInt32:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, wdbgerr.Wrap(wdbgerr.KindDecode, fmt.Errorf("wire: read int32: %w", err))
		}
		return Int32(int32(binary.BigEndian.Uint32(b[:]))), nil
	case TagUInt32:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, wdbgerr.Wrap(wdbgerr.KindDecode, fmt.Errorf("wire: read uint32: %w", err))
		}
		return UInt32(binary.BigEndian.Uint32(b[:])), nil
	case TagInt64:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, wdbgerr.Wrap(wdbgerr.KindDecode, fmt.Errorf("wire: read int64: %w", err))
		}
		return Int64(int64(binary.BigEndian.Uint64(b[:]))), nil
	case TagStringUTF8:
		s, err := decodeStringUTF8(r)
		if err != nil {
			return nil, wdbgerr.Wrap(wdbgerr.KindDecode, fmt.Errorf("wire: read utf8 string: %w", err))
		}
		return s, nil
	case TagStringUTF16:
		s, err := decodeStringUTF16(r)
		if err != nil {
			return nil, wdbgerr.Wrap(wdbgerr.KindDecode, fmt.Errorf("wire: read utf16 string: %w", err))
		}
		return s, nil
	default:
		return Unknown(tag), nil
	}
}

// decodeInt16Raw reads a tagged int16 and returns its bare value, used for
// the nested length prefix that precedes every string. A mismatched inner
// tag is a decode error, not silently treated as unknown — the length
// prefix must be exactly an int16 or the string byte count is unrecoverable.
// A negative length is a decode error too.
func decodeInt16Raw(r io.Reader) (int16, error) {
	var tagBuf [2]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		return 0, fmt.Errorf("read length tag: %w", err)
	}
	if Tag(tagBuf) != TagInt16 {
		return 0, fmt.Errorf("expected int16 length tag, got %v", tagBuf)
	}
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("read length value: %w", err)
	}
	n := int16(binary.BigEndian.Uint16(b[:]))
	if n < 0 {
		return 0, fmt.Errorf("negative length %d", n)
	}
	return n, nil
}

func writeTag(w io.Writer, t Tag) error {
	_, err := w.Write(t[:])
	return err
}
