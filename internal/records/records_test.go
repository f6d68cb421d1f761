package records

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := cbor.Marshal(v)
	if err != nil {
		t.Fatalf("cbor.Marshal: %v", err)
	}
	return b
}

func TestDecodePost(t *testing.T) {
	data := mustMarshal(t, map[string]interface{}{
		"$type":     NSIDPost,
		"text":      "hello firehose",
		"createdAt": "2024-01-01T00:00:00Z",
		"langs":     []string{"en"},
	})

	v, err := Decode(NSIDPost, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	post, ok := v.(*Post)
	if !ok {
		t.Fatalf("type = %T, want *Post", v)
	}
	if post.Text != "hello firehose" || post.CreatedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected post: %+v", post)
	}
	if len(post.Langs) != 1 || post.Langs[0] != "en" {
		t.Fatalf("unexpected langs: %+v", post.Langs)
	}
}

func TestDecodeFollow(t *testing.T) {
	data := mustMarshal(t, map[string]interface{}{
		"$type":     NSIDFollow,
		"subject":   "did:plc:abc123",
		"createdAt": "2024-01-01T00:00:00Z",
	})
	v, err := Decode(NSIDFollow, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	follow, ok := v.(*Follow)
	if !ok {
		t.Fatalf("type = %T, want *Follow", v)
	}
	if follow.Subject != "did:plc:abc123" {
		t.Fatalf("unexpected subject: %q", follow.Subject)
	}
}

func TestDecodeAllKnownSchemas(t *testing.T) {
	cases := []string{
		NSIDPost, NSIDFollow, NSIDBlock, NSIDRepost, NSIDLike,
		NSIDListitem, NSIDGenerator, NSIDProfile, NSIDList, NSIDStarterpack,
	}
	for _, nsid := range cases {
		nsid := nsid
		t.Run(nsid, func(t *testing.T) {
			if !Known(nsid) {
				t.Fatalf("Known(%q) = false, want true", nsid)
			}
			data := mustMarshal(t, map[string]interface{}{
				"$type":     nsid,
				"createdAt": "2024-01-01T00:00:00Z",
			})
			if _, err := Decode(nsid, data); err != nil {
				t.Fatalf("Decode(%q): %v", nsid, err)
			}
		})
	}
}

func TestDecodeUnknownCollection(t *testing.T) {
	data := mustMarshal(t, map[string]interface{}{
		"$type": "app.bsky.feed.newthing",
		"blob":  "arbitrary",
	})
	v, err := Decode("app.bsky.feed.newthing", data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	unk, ok := v.(Unknown)
	if !ok {
		t.Fatalf("type = %T, want Unknown", v)
	}
	if unk.NSID != "app.bsky.feed.newthing" {
		t.Fatalf("NSID = %q", unk.NSID)
	}
	if Known("app.bsky.feed.newthing") {
		t.Fatal("Known() = true for an unregistered collection")
	}
}

func TestDecodeMalformedCBORErrors(t *testing.T) {
	if _, err := Decode(NSIDPost, []byte{0xff, 0xff}); err == nil {
		t.Fatal("expected error decoding malformed cbor")
	}
}
