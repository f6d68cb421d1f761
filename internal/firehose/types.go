package firehose

import "github.com/bluesky-social/indigo/atproto/syntax"

// MessageKind discriminates the five subscribeRepos event kinds.
type MessageKind int

const (
	KindCommit MessageKind = iota
	KindHandle
	KindTombstone
	KindIdentity
	KindAccount
)

func (k MessageKind) String() string {
	switch k {
	case KindCommit:
		return "commit"
	case KindHandle:
		return "handle"
	case KindTombstone:
		return "tombstone"
	case KindIdentity:
		return "identity"
	case KindAccount:
		return "account"
	default:
		return "unknown"
	}
}

// FirehoseMessage is the decoded result of one subscribeRepos frame. Exactly
// one of the variant fields matching Kind is populated; the rest are zero.
// Non-commit variants carry their decoded CBOR payload unchanged as a
// generic map, since the core does not validate record semantics.
type FirehoseMessage struct {
	Kind MessageKind

	Commit    *Commit
	Handle    map[string]interface{}
	Tombstone map[string]interface{}
	Identity  map[string]interface{}
	Account   map[string]interface{}
}

// Commit is the decoded #commit event: the repository mutation envelope plus
// the ordered list of operations extracted from its embedded CAR blob. Did
// and Time are parsed into the ecosystem's own wire-primitive newtypes
// rather than left as bare strings, the same as the reference clients'
// string-wrapper types; Rev stays a plain string since it is never
// round-tripped through a typed comparison anywhere in this pipeline.
type Commit struct {
	Did        syntax.DID
	Rev        string
	Time       syntax.Datetime
	Operations []Operation

	// Envelope holds the commit's fields uninterpreted by the core (blocks,
	// since, prev, tooBig, seq, and any future additions), for consumers
	// that need them.
	Envelope map[string]interface{}
}

// OperationKind discriminates the three mutation kinds a commit op can carry.
type OperationKind int

const (
	OpCreate OperationKind = iota
	OpUpdate
	OpDelete
)

func (k OperationKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// OperationMeta is the (collection, rkey) pair derived by splitting a
// commit op's path on its first "/".
type OperationMeta struct {
	Collection string
	Rkey       string
}

// Operation is one entry of a commit's operation list. Record and CID are
// unset (nil / "") for Delete; every Create/Update carries both.
type Operation struct {
	Kind   OperationKind
	Meta   OperationMeta
	Record interface{}
	CID    string
}

// splitPath implements the meta-derivation rule: split on the first "/",
// missing rkey defaults to "".
func splitPath(path string) OperationMeta {
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			return OperationMeta{Collection: path[:i], Rkey: path[i+1:]}
		}
	}
	return OperationMeta{Collection: path, Rkey: ""}
}
