package wdbgerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfRecoversWrappedKind(t *testing.T) {
	base := errors.New("dial refused")
	wrapped := fmt.Errorf("conn: connect: %w", Wrap(KindTransport, base))

	if got := KindOf(wrapped); got != KindTransport {
		t.Fatalf("KindOf() = %v, want %v", got, KindTransport)
	}
}

func TestKindOfUntaggedErrorIsUnknown(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Fatalf("KindOf() = %v, want %v", got, KindUnknown)
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if err := Wrap(KindFraming, nil); err != nil {
		t.Fatalf("Wrap(kind, nil) = %v, want nil", err)
	}
}

func TestKindStrings(t *testing.T) {
	cases := map[Kind]string{
		KindUnknown:            "unknown",
		KindTransport:          "transport",
		KindFraming:            "framing",
		KindDecode:             "decode",
		KindIdentifierMismatch: "identifier_mismatch",
		KindRouting:            "routing",
		KindLifecycle:          "lifecycle",
		KindTimeout:            "timeout",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
