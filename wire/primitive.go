package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf16"
)

// Int8 is a signed 8-bit tagged integer.
type Int8 int8

func (v Int8) Tag() Tag         { return TagInt8 }
func (v Int8) EncodedSize() int { return 2 + 1 }
func (v Int8) Encode(w io.Writer) error {
	if err := writeTag(w, TagInt8); err != nil {
		return err
	}
	_, err := w.Write([]byte{byte(v)})
	return err
}

// Int16 is a signed 16-bit big-endian tagged integer.
type Int16 int16

func (v Int16) Tag() Tag         { return TagInt16 }
func (v Int16) EncodedSize() int { return 2 + 2 }
func (v Int16) Encode(w io.Writer) error {
	if err := writeTag(w, TagInt16); err != nil {
		return err
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	_, err := w.Write(b[:])
	return err
}

// Int32 is a signed 32-bit big-endian tagged integer.
type Int32 int32

func (v Int32) Tag() Tag         { return TagInt32 }
func (v Int32) EncodedSize() int { return 2 + 4 }
func (v Int32) Encode(w io.Writer) error {
	if err := writeTag(w, TagInt32); err != nil {
		return err
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	_, err := w.Write(b[:])
	return err
}

// UInt32 is an unsigned 32-bit big-endian tagged integer.
type UInt32 uint32

func (v UInt32) Tag() Tag         { return TagUInt32 }
func (v UInt32) EncodedSize() int { return 2 + 4 }
func (v UInt32) Encode(w io.Writer) error {
	if err := writeTag(w, TagUInt32); err != nil {
		return err
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	_, err := w.Write(b[:])
	return err
}

// Int64 is a signed 64-bit big-endian tagged integer.
type Int64 int64

func (v Int64) Tag() Tag         { return TagInt64 }
func (v Int64) EncodedSize() int { return 2 + 8 }
func (v Int64) Encode(w io.Writer) error {
	if err := writeTag(w, TagInt64); err != nil {
		return err
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

// StringUTF8 is a UTF-8 string, length-prefixed by a tagged int16 holding
// the byte count.
type StringUTF8 string

func (v StringUTF8) Tag() Tag { return TagStringUTF8 }

func (v StringUTF8) EncodedSize() int {
	return 2 + Int16(0).EncodedSize() + len(v)
}

func (v StringUTF8) Encode(w io.Writer) error {
	if err := writeTag(w, TagStringUTF8); err != nil {
		return err
	}
	if len(v) > 1<<15-1 {
		return fmt.Errorf("wire: utf8 string too long for int16 length prefix (%d bytes)", len(v))
	}
	if err := Int16(len(v)).Encode(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, string(v))
	return err
}

func decodeStringUTF8(r io.Reader) (StringUTF8, error) {
	n, err := decodeInt16Raw(r)
	if err != nil {
		return "", fmt.Errorf("decode length: %w", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read %d content bytes: %w", n, err)
	}
	// Lossy decode by design: a single malformed byte must not kill the
	// whole packet, since these strings end up in human-readable diagnostics.
	return StringUTF8(lossyUTF8(buf)), nil
}

func lossyUTF8(buf []byte) string {
	// The stdlib string conversion already substitutes invalid UTF-8
	// sequences with U+FFFD, matching the lossy decode policy.
	return string(buf)
}

// StringUTF16 is a UTF-16 (big-endian) string, length-prefixed by a tagged
// int16 holding the code-unit count (not the byte count).
type StringUTF16 string

func (v StringUTF16) Tag() Tag { return TagStringUTF16 }

func (v StringUTF16) codeUnits() []uint16 {
	return utf16.Encode([]rune(string(v)))
}

func (v StringUTF16) EncodedSize() int {
	return 2 + Int16(0).EncodedSize() + len(v.codeUnits())*2
}

func (v StringUTF16) Encode(w io.Writer) error {
	units := v.codeUnits()
	if err := writeTag(w, TagStringUTF16); err != nil {
		return err
	}
	if len(units) > 1<<15-1 {
		return fmt.Errorf("wire: utf16 string too long for int16 length prefix (%d units)", len(units))
	}
	if err := Int16(len(units)).Encode(w); err != nil {
		return err
	}
	buf := make([]byte, len(units)*2)
	for i, u := range units {
		binary.BigEndian.PutUint16(buf[i*2:], u)
	}
	_, err := w.Write(buf)
	return err
}

func decodeStringUTF16(r io.Reader) (StringUTF16, error) {
	n, err := decodeInt16Raw(r)
	if err != nil {
		return "", fmt.Errorf("decode length: %w", err)
	}
	buf := make([]byte, int(n)*2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read %d code units: %w", n, err)
	}
	if len(buf)%2 != 0 {
		return "", fmt.Errorf("uneven byte length for utf16 string content")
	}
	units := make([]uint16, len(buf)/2)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(buf[i*2:])
	}
	// Lossy: unpaired surrogates decode to the replacement character rather
	// than aborting, same rationale as StringUTF8.
	return StringUTF16(utf16.Decode(units)), nil
}

// Unknown preserves a payload element whose tag this client does not
// recognize. It carries no content — only the raw tag bytes — but that is
// exactly enough to re-encode the original bytes when relaying through the
// raw-packet observer. Decode is intentionally not implemented for this
// type: an Unknown value is a decode *result*, never something the client
// assembles for a request it sends itself.
type Unknown Tag

func (v Unknown) Tag() Tag         { return Tag(v) }
func (v Unknown) EncodedSize() int { return 2 }
func (v Unknown) Encode(w io.Writer) error {
	_, err := w.Write(v[:])
	return err
}
