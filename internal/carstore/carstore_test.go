package carstore

import (
	"bytes"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/multiformats/go-varint"

	"github.com/JWhist/atproto-firehose/internal/cidcompat"
)

// buildCAR assembles a minimal CAR v1 byte stream from a set of raw block
// payloads, computing each block's CIDv1/dag-cbor header itself. This
// mirrors the shape ipld/go-car/v2 expects: a varint-length-prefixed CBOR
// header section naming no roots, followed by varint-length-prefixed
// (cid-bytes || block-bytes) sections.
func buildCAR(t *testing.T, payloads [][]byte) ([]byte, []cid.Cid) {
	t.Helper()

	header, err := cbor.Marshal(map[string]interface{}{
		"version": uint64(1),
		"roots":   []cid.Cid{},
	})
	if err != nil {
		t.Fatalf("marshal car header: %v", err)
	}

	var buf bytes.Buffer
	writeSection(t, &buf, header)

	cids := make([]cid.Cid, 0, len(payloads))
	for _, p := range payloads {
		mh, err := multihash.Sum(p, multihash.SHA2_256, -1)
		if err != nil {
			t.Fatalf("multihash.Sum: %v", err)
		}
		c := cid.NewCidV1(cid.DagCBOR, mh)
		cids = append(cids, c)

		section := append(append([]byte{}, c.Bytes()...), p...)
		writeSection(t, &buf, section)
	}
	return buf.Bytes(), cids
}

func writeSection(t *testing.T, buf *bytes.Buffer, payload []byte) {
	t.Helper()
	lenBytes := varint.ToUvarint(uint64(len(payload)))
	buf.Write(lenBytes)
	buf.Write(payload)
}

func rawCIDFor(c cid.Cid) cidcompat.RawCID {
	return cidcompat.RawCID(c.Bytes())
}

func TestDecodeFindsEachBlock(t *testing.T) {
	payloads := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma")}
	blob, cids := buildCAR(t, payloads)

	blocks, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if blocks.Len() != len(payloads) {
		t.Fatalf("Len() = %d, want %d", blocks.Len(), len(payloads))
	}

	for i, c := range cids {
		got, ok := blocks.Find(rawCIDFor(c))
		if !ok {
			t.Fatalf("Find(%s) missing", c)
		}
		if !bytes.Equal(got, payloads[i]) {
			t.Fatalf("Find(%s) = %q, want %q", c, got, payloads[i])
		}
	}
}

func TestFindReportsMissingCID(t *testing.T) {
	blob, _ := buildCAR(t, [][]byte{[]byte("only-block")})
	blocks, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	mh, err := multihash.Sum([]byte("never-present"), multihash.SHA2_256, -1)
	if err != nil {
		t.Fatalf("multihash.Sum: %v", err)
	}
	missing := cid.NewCidV1(cid.DagCBOR, mh)

	if _, ok := blocks.Find(rawCIDFor(missing)); ok {
		t.Fatal("Find unexpectedly resolved a CID never written to the CAR")
	}
}

func TestDecodeRejectsTruncatedCAR(t *testing.T) {
	blob, _ := buildCAR(t, [][]byte{[]byte("whole-block")})
	truncated := blob[:len(blob)-3]

	if _, err := Decode(truncated); err == nil {
		t.Fatal("expected error decoding a truncated CAR blob")
	}
}

func TestDecodeEmptyBlockSet(t *testing.T) {
	blob, _ := buildCAR(t, nil)
	blocks, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if blocks.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", blocks.Len())
	}
}
