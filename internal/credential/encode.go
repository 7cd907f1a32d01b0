// Package credential builds the OAuth record Antigravity keeps in its
// state database under jetskiStateSync.agentManagerInitState.
//
// The layout is a protobuf-shaped message the IDE decodes on startup:
//
//	field 6 (bytes) {
//	    field 1 (bytes)  access token
//	    field 2 (bytes)  "Bearer"
//	    field 3 (bytes)  refresh token
//	    field 4 (bytes)  { field 1 (varint) expiry, unix seconds }
//	}
//
// Field numbers and nesting are fixed by the consumer. There is no decoder
// on our side; the record is write-only.
package credential

import (
	"encoding/base64"
	"errors"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldOAuth        protowire.Number = 6
	fieldAccessToken  protowire.Number = 1
	fieldTokenType    protowire.Number = 2
	fieldRefreshToken protowire.Number = 3
	fieldExpiry       protowire.Number = 4
	fieldExpirySecs   protowire.Number = 1

	// TokenType is the literal written into field 2.
	TokenType = "Bearer"
)

// ErrNegativeExpiry is returned when an expiry before the epoch is supplied.
var ErrNegativeExpiry = errors.New("credential: expiry must not be negative")

// Encode returns the raw record bytes.
func Encode(accessToken, refreshToken string, expiry int64) []byte {
	var ts []byte
	ts = protowire.AppendTag(ts, fieldExpirySecs, protowire.VarintType)
	ts = protowire.AppendVarint(ts, uint64(expiry))

	var inner []byte
	inner = appendString(inner, fieldAccessToken, accessToken)
	inner = appendString(inner, fieldTokenType, TokenType)
	inner = appendString(inner, fieldRefreshToken, refreshToken)
	inner = protowire.AppendTag(inner, fieldExpiry, protowire.BytesType)
	inner = protowire.AppendBytes(inner, ts)

	out := make([]byte, 0, len(inner)+protowire.SizeBytes(len(inner))+1)
	out = protowire.AppendTag(out, fieldOAuth, protowire.BytesType)
	out = protowire.AppendBytes(out, inner)
	return out
}

// EncodeBase64 returns the record as standard padded base64, the form stored
// in the text-valued ItemTable.
func EncodeBase64(accessToken, refreshToken string, expiry int64) (string, error) {
	if expiry < 0 {
		return "", ErrNegativeExpiry
	}
	return base64.StdEncoding.EncodeToString(Encode(accessToken, refreshToken, expiry)), nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}
