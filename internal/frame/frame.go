// Package frame implements the subscribeRepos frame envelope: splitting a raw
// websocket payload into a self-delimited CBOR header followed by a body, and
// discriminating it into a Message or an Error frame.
package frame

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind discriminates the two frame variants a header can produce.
type Kind int

const (
	// KindMessage is produced when the header's op field is 1.
	KindMessage Kind = iota
	// KindError is produced when the header's op field is -1.
	KindError
)

// Frame is the decoded envelope: either a Message carrying an optional type
// tag and a body, or an Error with no further contents interpreted here.
type Frame struct {
	Kind Kind

	// Type is the header's "t" field. Only meaningful when Kind == KindMessage.
	// A missing or non-string "t" leaves this as "", Present false.
	Type        string
	TypePresent bool

	// Body is the bytes following the header, verbatim. For KindMessage this
	// is the event payload; for KindError it is the protocol's structured
	// error body ({error, message}), when the relay sent one.
	Body []byte
}

// Errors returned by Decode. These are per-frame: a caller iterating a
// Subscription should log them and keep pulling, not tear down the stream.
var (
	// ErrInvalidFrameData is returned when the payload doesn't start with a
	// well-formed CBOR item that decodes to a map. A header with no trailing
	// bytes is accepted and yields an empty body.
	ErrInvalidFrameData = errors.New("frame: invalid frame data")
	// ErrInvalidFrameType is returned when the header's op field is missing
	// or not one of {1, -1}.
	ErrInvalidFrameType = errors.New("frame: invalid frame type")
)

// Decode splits payload into a header CBOR item followed by a body, and
// discriminates the result into a Frame. The header is treated as exactly one
// top-level CBOR item; whatever bytes remain become the Message body
// verbatim (no CBOR decoding of the body happens here).
func Decode(payload []byte) (Frame, error) {
	dec := cbor.NewDecoder(bytes.NewReader(payload))

	var raw map[string]cbor.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrameData, err)
	}

	opRaw, ok := raw["op"]
	if !ok {
		return Frame{}, fmt.Errorf("%w: missing op field", ErrInvalidFrameType)
	}
	var op int64
	if err := cbor.Unmarshal(opRaw, &op); err != nil {
		return Frame{}, fmt.Errorf("%w: op field is not an integer", ErrInvalidFrameType)
	}

	body := payload[dec.NumBytesRead():]

	switch op {
	case 1:
		f := Frame{Kind: KindMessage, Body: body}
		// A missing or non-string t is legal at this layer; only a
		// successfully-decoded string populates Type.
		if tRaw, ok := raw["t"]; ok {
			var t string
			if err := cbor.Unmarshal(tRaw, &t); err == nil {
				f.Type = t
				f.TypePresent = true
			}
		}
		return f, nil
	case -1:
		return Frame{Kind: KindError, Body: body}, nil
	default:
		return Frame{}, fmt.Errorf("%w: op=%d", ErrInvalidFrameType, op)
	}
}
