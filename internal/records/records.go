// Package records defines the typed payloads for the ten known ATProto
// collection schemas a commit operation can reference, and the NSID
// dispatch table that chooses among them. Unknown collections decode to
// Unknown, carrying the raw CBOR tree rather than failing.
package records

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// NSID string constants for the collections this dispatch table knows
// about. These match the lexicon identifiers verbatim.
const (
	NSIDPost         = "app.bsky.feed.post"
	NSIDFollow       = "app.bsky.graph.follow"
	NSIDBlock        = "app.bsky.graph.block"
	NSIDRepost       = "app.bsky.feed.repost"
	NSIDLike         = "app.bsky.feed.like"
	NSIDListitem     = "app.bsky.graph.listitem"
	NSIDGenerator    = "app.bsky.feed.generator"
	NSIDProfile      = "app.bsky.actor.profile"
	NSIDList         = "app.bsky.graph.list"
	NSIDStarterpack  = "app.bsky.graph.starterpack"
)

// Post is app.bsky.feed.post.
type Post struct {
	Type      string                 `cbor:"$type" json:"$type"`
	Text      string                 `cbor:"text" json:"text"`
	CreatedAt string                 `cbor:"createdAt" json:"createdAt"`
	Langs     []string               `cbor:"langs,omitempty" json:"langs,omitempty"`
	Reply     map[string]interface{} `cbor:"reply,omitempty" json:"reply,omitempty"`
	Embed     map[string]interface{} `cbor:"embed,omitempty" json:"embed,omitempty"`
	Facets    []map[string]interface{} `cbor:"facets,omitempty" json:"facets,omitempty"`
}

// Follow is app.bsky.graph.follow.
type Follow struct {
	Type      string `cbor:"$type" json:"$type"`
	Subject   string `cbor:"subject" json:"subject"`
	CreatedAt string `cbor:"createdAt" json:"createdAt"`
}

// Block is app.bsky.graph.block.
type Block struct {
	Type      string `cbor:"$type" json:"$type"`
	Subject   string `cbor:"subject" json:"subject"`
	CreatedAt string `cbor:"createdAt" json:"createdAt"`
}

// Repost is app.bsky.feed.repost.
type Repost struct {
	Type      string                 `cbor:"$type" json:"$type"`
	Subject   map[string]interface{} `cbor:"subject" json:"subject"`
	CreatedAt string                 `cbor:"createdAt" json:"createdAt"`
}

// Like is app.bsky.feed.like.
type Like struct {
	Type      string                 `cbor:"$type" json:"$type"`
	Subject   map[string]interface{} `cbor:"subject" json:"subject"`
	CreatedAt string                 `cbor:"createdAt" json:"createdAt"`
}

// Listitem is app.bsky.graph.listitem.
type Listitem struct {
	Type      string `cbor:"$type" json:"$type"`
	Subject   string `cbor:"subject" json:"subject"`
	List      string `cbor:"list" json:"list"`
	CreatedAt string `cbor:"createdAt" json:"createdAt"`
}

// Generator is app.bsky.feed.generator.
type Generator struct {
	Type        string                 `cbor:"$type" json:"$type"`
	Did         string                 `cbor:"did" json:"did"`
	DisplayName string                 `cbor:"displayName" json:"displayName"`
	Description string                 `cbor:"description,omitempty" json:"description,omitempty"`
	Avatar      map[string]interface{} `cbor:"avatar,omitempty" json:"avatar,omitempty"`
	CreatedAt   string                 `cbor:"createdAt" json:"createdAt"`
}

// Profile is app.bsky.actor.profile.
type Profile struct {
	Type        string                 `cbor:"$type" json:"$type"`
	DisplayName string                 `cbor:"displayName,omitempty" json:"displayName,omitempty"`
	Description string                 `cbor:"description,omitempty" json:"description,omitempty"`
	Avatar      map[string]interface{} `cbor:"avatar,omitempty" json:"avatar,omitempty"`
	Banner      map[string]interface{} `cbor:"banner,omitempty" json:"banner,omitempty"`
	CreatedAt   string                 `cbor:"createdAt,omitempty" json:"createdAt,omitempty"`
}

// List is app.bsky.graph.list.
type List struct {
	Type        string `cbor:"$type" json:"$type"`
	Name        string `cbor:"name" json:"name"`
	Purpose     string `cbor:"purpose" json:"purpose"`
	Description string `cbor:"description,omitempty" json:"description,omitempty"`
	CreatedAt   string `cbor:"createdAt" json:"createdAt"`
}

// Starterpack is app.bsky.graph.starterpack.
type Starterpack struct {
	Type        string                 `cbor:"$type" json:"$type"`
	Name        string                 `cbor:"name" json:"name"`
	Description string                 `cbor:"description,omitempty" json:"description,omitempty"`
	List        string                 `cbor:"list" json:"list"`
	FeedItems   []map[string]interface{} `cbor:"feeds,omitempty" json:"feeds,omitempty"`
	CreatedAt   string                 `cbor:"createdAt" json:"createdAt"`
}

// Unknown wraps the raw decoded CBOR tree for any collection not in the
// dispatch table below.
type Unknown struct {
	NSID  string
	Value interface{}
}

// decoders maps NSID to a constructor that decodes raw CBOR bytes into the
// schema's Go type. Keyed by string so adding a schema is a one-line change,
// not a switch-statement edit.
var decoders = map[string]func([]byte) (interface{}, error){
	NSIDPost:        func(b []byte) (interface{}, error) { return decodeInto(b, &Post{}) },
	NSIDFollow:      func(b []byte) (interface{}, error) { return decodeInto(b, &Follow{}) },
	NSIDBlock:       func(b []byte) (interface{}, error) { return decodeInto(b, &Block{}) },
	NSIDRepost:      func(b []byte) (interface{}, error) { return decodeInto(b, &Repost{}) },
	NSIDLike:        func(b []byte) (interface{}, error) { return decodeInto(b, &Like{}) },
	NSIDListitem:    func(b []byte) (interface{}, error) { return decodeInto(b, &Listitem{}) },
	NSIDGenerator:   func(b []byte) (interface{}, error) { return decodeInto(b, &Generator{}) },
	NSIDProfile:     func(b []byte) (interface{}, error) { return decodeInto(b, &Profile{}) },
	NSIDList:        func(b []byte) (interface{}, error) { return decodeInto(b, &List{}) },
	NSIDStarterpack: func(b []byte) (interface{}, error) { return decodeInto(b, &Starterpack{}) },
}

func decodeInto(data []byte, target interface{}) (interface{}, error) {
	if err := cbor.Unmarshal(data, target); err != nil {
		return nil, err
	}
	return target, nil
}

// Decode dispatches on nsid and decodes data into the matching schema type.
// An nsid with no registered decoder yields Unknown wrapping the raw decoded
// CBOR tree, not an error — the protocol is meant to grow collections
// without breaking older consumers.
func Decode(nsid string, data []byte) (interface{}, error) {
	if dec, ok := decoders[nsid]; ok {
		v, err := dec(data)
		if err != nil {
			return nil, fmt.Errorf("records: decoding %s: %w", nsid, err)
		}
		return v, nil
	}

	var raw interface{}
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("records: decoding unknown collection %s: %w", nsid, err)
	}
	return Unknown{NSID: nsid, Value: raw}, nil
}

// Known reports whether nsid has a registered typed decoder.
func Known(nsid string) bool {
	_, ok := decoders[nsid]
	return ok
}
