// Package cidcompat bridges the two incompatible CID representations that
// show up in a firehose commit: the tag-42 "CID link" bytes embedded directly
// in DAG-CBOR (as seen on a commit op's cid field) and the typed cid.Cid the
// CAR block reader produces for its block table. Callers should never
// manipulate both encodings in the same expression; convert to cid.Cid first.
package cidcompat

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/multiformats/go-varint"
)

// dagCborCIDLinkTag is the CBOR tag DAG-CBOR uses for a CID link: a tagged
// byte string whose first byte is a multibase "identity" prefix (0x00)
// followed by the CID's raw binary form.
const dagCborCIDLinkTag = 42

// cidV0ByteLen is the binary length of a CIDv0 (a bare sha2-256 multihash:
// 2-byte code+length prefix plus a 32-byte digest).
const cidV0ByteLen = 34

// RawCID is the "old" encoding: the raw bytes of a CID link exactly as
// recovered from a DAG-CBOR tag 42, before anything has interpreted its
// version, codec, or multihash. It implements cbor.Unmarshaler so it can be
// embedded directly in a struct decoded from a commit op.
type RawCID []byte

// UnmarshalCBOR implements cbor.Unmarshaler by intercepting the raw tag bytes
// and validating the CID-link shape without resolving it to a cid.Cid yet.
func (r *RawCID) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := cbor.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("cidcompat: decoding cid link: %w", err)
	}
	if tag.Number != dagCborCIDLinkTag {
		return fmt.Errorf("cidcompat: expected cbor tag %d for cid link, got %d", dagCborCIDLinkTag, tag.Number)
	}
	b, ok := tag.Content.([]byte)
	if !ok {
		return fmt.Errorf("cidcompat: cid link tag content is not a byte string")
	}
	if len(b) == 0 || b[0] != 0x00 {
		return fmt.Errorf("cidcompat: cid link missing multibase identity prefix")
	}
	*r = append(RawCID(nil), b[1:]...)
	return nil
}

// MarshalCBOR implements cbor.Marshaler, the inverse of UnmarshalCBOR.
func (r RawCID) MarshalCBOR() ([]byte, error) {
	content := make([]byte, 0, len(r)+1)
	content = append(content, 0x00)
	content = append(content, r...)
	return cbor.Marshal(cbor.Tag{Number: dagCborCIDLinkTag, Content: content})
}

// Convert transposes a RawCID into the "new" encoding (cid.Cid, as produced
// by the CAR block reader) by decomposing version, codec, and multihash and
// round-tripping the multihash bytes through multihash.Cast.
func Convert(raw RawCID) (cid.Cid, error) {
	if len(raw) == cidV0ByteLen && raw[0] == multihash.SHA2_256 && raw[1] == 32 {
		mh, err := multihash.Cast(raw)
		if err != nil {
			return cid.Undef, fmt.Errorf("cidcompat: re-casting v0 multihash: %w", err)
		}
		return cid.NewCidV0(mh), nil
	}

	version, n, err := varint.FromUvarint(raw)
	if err != nil {
		return cid.Undef, fmt.Errorf("cidcompat: reading cid version: %w", err)
	}
	if version != 1 {
		return cid.Undef, fmt.Errorf("cidcompat: unsupported cid version %d", version)
	}
	rest := raw[n:]

	codec, n2, err := varint.FromUvarint(rest)
	if err != nil {
		return cid.Undef, fmt.Errorf("cidcompat: reading cid codec: %w", err)
	}
	mhBytes := rest[n2:]

	mh, err := multihash.Cast(mhBytes)
	if err != nil {
		return cid.Undef, fmt.Errorf("cidcompat: re-casting multihash: %w", err)
	}
	return cid.NewCidV1(codec, mh), nil
}

// Equal reports whether two cid.Cid values (already in the "new" encoding)
// address the same content. Equality after Convert agrees with equality of
// the underlying (version, codec, digest) tuple because cid.Cid's own
// equality is defined that way.
func Equal(a, b cid.Cid) bool {
	return a.Equals(b)
}
