// Package message implements the catalog of messages exchanged with the
// game's debug interface: each message is a fixed identifier (an ordered
// prefix of tagged values) followed by a variable body. Messages do not
// carry any self-describing framing beyond the identifier prefix, so an
// incoming packet is classified by comparing its leading payload values
// against every identifier known to a Registry.
package message

import (
	"bytes"
	"fmt"

	"wdbg/wire"
)

// Identifier is the fixed prefix of tagged values that names a message.
// Registry does not reject an identifier that is a proper prefix of
// another (ScriptsReloadProgressIdentifier is a prefix of
// ScriptsRootPathResponseIdentifier); Probe resolves such overlaps by
// taking the longest match.
type Identifier struct {
	Values []wire.Value
}

// NewIdentifier builds an identifier from its ordered constituent values.
func NewIdentifier(values ...wire.Value) Identifier {
	return Identifier{Values: values}
}

func (id Identifier) key() (string, error) {
	var buf bytes.Buffer
	for _, v := range id.Values {
		if err := v.Encode(&buf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func prefixKey(values []wire.Value, n int) (string, error) {
	var buf bytes.Buffer
	for _, v := range values[:n] {
		if err := v.Encode(&buf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// Registry classifies inbound packets by the longest registered identifier
// that prefixes their payload.
type Registry struct {
	known     map[string]Identifier
	maxLength int
}

// NewRegistry returns an empty identifier registry.
func NewRegistry() *Registry {
	return &Registry{known: make(map[string]Identifier)}
}

// Register adds id to the registry. Registering the same identifier twice
// is a no-op.
func (r *Registry) Register(id Identifier) error {
	key, err := id.key()
	if err != nil {
		return fmt.Errorf("message: register identifier: %w", err)
	}
	r.known[key] = id
	if len(id.Values) > r.maxLength {
		r.maxLength = len(id.Values)
	}
	return nil
}

// Probe finds the longest registered identifier that prefixes payload, if
// any. Messages sent by the game carry no self-describing tag beyond their
// identifier, so every candidate prefix length must be tried.
func (r *Registry) Probe(payload []wire.Value) (Identifier, bool, error) {
	longest := -1
	var found Identifier

	limit := r.maxLength
	if len(payload) < limit {
		limit = len(payload)
	}
	for n := 1; n <= limit; n++ {
		key, err := prefixKey(payload, n)
		if err != nil {
			return Identifier{}, false, fmt.Errorf("message: probe: %w", err)
		}
		if id, ok := r.known[key]; ok {
			longest = n
			found = id
		}
	}
	if longest < 0 {
		return Identifier{}, false, nil
	}
	return found, true, nil
}

// cursor walks a decoded payload field by field, the way a message body is
// parsed off the tail of a packet once its identifier prefix is consumed.
type cursor struct {
	values []wire.Value
	pos    int
}

func newCursor(values []wire.Value) *cursor {
	return &cursor{values: values}
}

func (c *cursor) next(what string) (wire.Value, error) {
	if c.pos >= len(c.values) {
		return nil, fmt.Errorf("message: %s: unexpected end of payload", what)
	}
	v := c.values[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) popInt8(what string) (int8, error) {
	v, err := c.next(what)
	if err != nil {
		return 0, err
	}
	i, ok := v.(wire.Int8)
	if !ok {
		return 0, fmt.Errorf("message: %s: expected int8, got %T", what, v)
	}
	return int8(i), nil
}

func (c *cursor) popInt32(what string) (int32, error) {
	v, err := c.next(what)
	if err != nil {
		return 0, err
	}
	i, ok := v.(wire.Int32)
	if !ok {
		return 0, fmt.Errorf("message: %s: expected int32, got %T", what, v)
	}
	return int32(i), nil
}

func (c *cursor) popUInt32(what string) (uint32, error) {
	v, err := c.next(what)
	if err != nil {
		return 0, err
	}
	i, ok := v.(wire.UInt32)
	if !ok {
		return 0, fmt.Errorf("message: %s: expected uint32, got %T", what, v)
	}
	return uint32(i), nil
}

func (c *cursor) popStringUTF8(what string) (string, error) {
	v, err := c.next(what)
	if err != nil {
		return "", err
	}
	s, ok := v.(wire.StringUTF8)
	if !ok {
		return "", fmt.Errorf("message: %s: expected utf8 string, got %T", what, v)
	}
	return string(s), nil
}

func (c *cursor) popStringUTF16(what string) (string, error) {
	v, err := c.next(what)
	if err != nil {
		return "", err
	}
	s, ok := v.(wire.StringUTF16)
	if !ok {
		return "", fmt.Errorf("message: %s: expected utf16 string, got %T", what, v)
	}
	return string(s), nil
}

func (c *cursor) expectStringUTF8(what, want string) error {
	got, err := c.popStringUTF8(what)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("message: %s: expected %q, got %q", what, want, got)
	}
	return nil
}

func (c *cursor) expectInt32(what string, want int32) error {
	got, err := c.popInt32(what)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("message: %s: expected %#x, got %#x", what, want, got)
	}
	return nil
}
