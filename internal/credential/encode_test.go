package credential

import (
	"bytes"
	"encoding/base64"
	"errors"
	"math"
	"strings"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestEncode_KnownBytes(t *testing.T) {
	got := Encode("a", "r", 1)
	want := []byte{
		0x32, 0x12, // field 6, bytes, len 18
		0x0a, 0x01, 'a',
		0x12, 0x06, 'B', 'e', 'a', 'r', 'e', 'r',
		0x1a, 0x01, 'r',
		0x22, 0x02, 0x08, 0x01,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode() = % x, want % x", got, want)
	}
}

type decodedRecord struct {
	access  string
	kind    string
	refresh string
	expiry  uint64
}

// decodeRecord walks the record strictly in field order 1,2,3,4 and fails
// the test on any deviation.
func decodeRecord(t *testing.T, b []byte) decodedRecord {
	t.Helper()

	if len(b) == 0 || b[0] != 0x32 {
		t.Fatalf("record = % x, want leading 0x32", b)
	}
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 || num != 6 || typ != protowire.BytesType {
		t.Fatalf("outer tag decode: num=%d typ=%d n=%d", num, typ, n)
	}
	inner, m := protowire.ConsumeBytes(b[n:])
	if m < 0 {
		t.Fatalf("outer length invalid: %v", protowire.ParseError(m))
	}
	if n+m != len(b) {
		t.Fatalf("trailing bytes after outer field: consumed %d of %d", n+m, len(b))
	}

	var rec decodedRecord
	wantTags := []byte{0x0a, 0x12, 0x1a, 0x22}
	for i, field := range []protowire.Number{1, 2, 3, 4} {
		if len(inner) == 0 {
			t.Fatalf("record ended before field %d", field)
		}
		if inner[0] != wantTags[i] {
			t.Fatalf("field %d tag byte = %#x, want %#x", field, inner[0], wantTags[i])
		}
		num, typ, n := protowire.ConsumeTag(inner)
		if n < 0 || num != field || typ != protowire.BytesType {
			t.Fatalf("field %d: num=%d typ=%d n=%d", field, num, typ, n)
		}
		inner = inner[n:]
		payload, m := protowire.ConsumeBytes(inner)
		if m < 0 {
			t.Fatalf("field %d length invalid: %v", field, protowire.ParseError(m))
		}
		inner = inner[m:]

		switch field {
		case 1:
			rec.access = string(payload)
		case 2:
			rec.kind = string(payload)
		case 3:
			rec.refresh = string(payload)
		case 4:
			if len(payload) == 0 || payload[0] != 0x08 {
				t.Fatalf("expiry tag = % x, want 0x08", payload)
			}
			_, _, tn := protowire.ConsumeTag(payload)
			v, vn := protowire.ConsumeVarint(payload[tn:])
			if vn < 0 || tn+vn != len(payload) {
				t.Fatalf("expiry varint invalid: consumed %d of %d", tn+vn, len(payload))
			}
			rec.expiry = v
		}
	}
	if len(inner) != 0 {
		t.Fatalf("unexpected %d trailing bytes in record", len(inner))
	}
	return rec
}

func TestEncodeBase64_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		access  string
		refresh string
		expiry  int64
	}{
		{name: "typical", access: "ya29.a0AfH6SMB", refresh: "1//0gLx-refresh", expiry: 1735689600},
		{name: "empty tokens", access: "", refresh: "", expiry: 0},
		{name: "utf8", access: "tökén-✓", refresh: "リフレッシュ", expiry: 42},
		{name: "long token needs two byte length", access: strings.Repeat("x", 300), refresh: "r", expiry: 127},
		{name: "varint boundary", access: "a", refresh: "r", expiry: 128},
		{name: "max 63 bit expiry", access: "a", refresh: "r", expiry: math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeBase64(tt.access, tt.refresh, tt.expiry)
			if err != nil {
				t.Fatalf("EncodeBase64: %v", err)
			}
			raw, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				t.Fatalf("output is not standard base64: %v", err)
			}

			rec := decodeRecord(t, raw)
			if rec.access != tt.access {
				t.Errorf("access = %q, want %q", rec.access, tt.access)
			}
			if rec.kind != TokenType {
				t.Errorf("token type = %q, want %q", rec.kind, TokenType)
			}
			if rec.refresh != tt.refresh {
				t.Errorf("refresh = %q, want %q", rec.refresh, tt.refresh)
			}
			if rec.expiry != uint64(tt.expiry) {
				t.Errorf("expiry = %d, want %d", rec.expiry, tt.expiry)
			}
		})
	}
}

func TestEncodeBase64_Padding(t *testing.T) {
	// 20 raw bytes -> 28 base64 chars with one '=' of padding.
	encoded, err := EncodeBase64("a", "r", 1)
	if err != nil {
		t.Fatalf("EncodeBase64: %v", err)
	}
	if len(encoded)%4 != 0 {
		t.Fatalf("encoded length %d is not padded to a multiple of 4", len(encoded))
	}
	if !strings.HasSuffix(encoded, "=") {
		t.Fatalf("expected '=' padding, got %q", encoded)
	}
}

func TestEncodeBase64_RejectsNegativeExpiry(t *testing.T) {
	_, err := EncodeBase64("a", "r", -1)
	if !errors.Is(err, ErrNegativeExpiry) {
		t.Fatalf("expected ErrNegativeExpiry, got %v", err)
	}
}
