package firehose

import (
	"fmt"
	"log"

	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/fxamacker/cbor/v2"

	"github.com/JWhist/atproto-firehose/internal/carstore"
	"github.com/JWhist/atproto-firehose/internal/cidcompat"
	"github.com/JWhist/atproto-firehose/internal/frame"
	"github.com/JWhist/atproto-firehose/internal/records"
)

type commitEnvelope struct {
	Repo   string     `cbor:"repo"`
	Rev    string     `cbor:"rev"`
	Time   string     `cbor:"time"`
	Blocks []byte     `cbor:"blocks"`
	Ops    []commitOp `cbor:"ops"`
}

type commitOp struct {
	Action string            `cbor:"action"`
	Path   string            `cbor:"path"`
	Cid    *cidcompat.RawCID `cbor:"cid"`
}

// Decode maps a single decoded Frame to a FirehoseMessage. It is the pure,
// state-free center of the pipeline: the same frame bytes always produce the
// same result, or the same error.
func Decode(f frame.Frame) (FirehoseMessage, error) {
	if f.Kind == frame.KindError {
		var body struct {
			Error   string `cbor:"error"`
			Message string `cbor:"message"`
		}
		if err := cbor.Unmarshal(f.Body, &body); err == nil && body.Error != "" {
			return FirehoseMessage{}, &RelayErrorFrame{Code: body.Error, Message: body.Message}
		}
		return FirehoseMessage{}, ErrFrameReported
	}
	if !f.TypePresent {
		return FirehoseMessage{}, ErrNoTypeInFrame
	}

	switch f.Type {
	case "#commit":
		return decodeCommit(f.Body)
	case "#handle":
		m, err := decodeGenericMap(f.Body)
		if err != nil {
			return FirehoseMessage{}, err
		}
		return FirehoseMessage{Kind: KindHandle, Handle: m}, nil
	case "#tombstone":
		m, err := decodeGenericMap(f.Body)
		if err != nil {
			return FirehoseMessage{}, err
		}
		return FirehoseMessage{Kind: KindTombstone, Tombstone: m}, nil
	case "#identity":
		m, err := decodeGenericMap(f.Body)
		if err != nil {
			return FirehoseMessage{}, err
		}
		return FirehoseMessage{Kind: KindIdentity, Identity: m}, nil
	case "#account":
		m, err := decodeGenericMap(f.Body)
		if err != nil {
			return FirehoseMessage{}, err
		}
		return FirehoseMessage{Kind: KindAccount, Account: m}, nil
	default:
		return FirehoseMessage{}, &UnknownFrameTypeError{Type: f.Type}
	}
}

func decodeGenericMap(body []byte) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := cbor.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCborDecode, err)
	}
	return m, nil
}

func decodeCommit(body []byte) (FirehoseMessage, error) {
	var env commitEnvelope
	if err := cbor.Unmarshal(body, &env); err != nil {
		return FirehoseMessage{}, fmt.Errorf("%w: commit envelope: %v", ErrCborDecode, err)
	}

	envelope, err := decodeGenericMap(body)
	if err != nil {
		return FirehoseMessage{}, err
	}

	blocks, err := carstore.Decode(env.Blocks)
	if err != nil {
		return FirehoseMessage{}, fmt.Errorf("%w: %v", ErrCarDecode, err)
	}

	did, err := syntax.ParseDID(env.Repo)
	if err != nil {
		return FirehoseMessage{}, fmt.Errorf("%w: commit repo: %v", ErrCborDecode, err)
	}
	commitTime, err := syntax.ParseDatetime(env.Time)
	if err != nil {
		return FirehoseMessage{}, fmt.Errorf("%w: commit time: %v", ErrCborDecode, err)
	}

	ops := make([]Operation, 0, len(env.Ops))
	for _, op := range env.Ops {
		meta := splitPath(op.Path)

		if op.Action == "delete" {
			ops = append(ops, Operation{Kind: OpDelete, Meta: meta})
			continue
		}

		if op.Cid == nil {
			log.Printf("⚠️  commit op missing cid, skipping (action=%s, path=%s, repo=%s, rev=%s)",
				op.Action, op.Path, env.Repo, env.Rev)
			continue
		}

		data, ok := blocks.Find(*op.Cid)
		if !ok {
			return FirehoseMessage{}, &NoBlockForCommitError{
				Action: op.Action, Rev: env.Rev, Repo: env.Repo, Path: op.Path,
			}
		}

		resolved, err := cidcompat.Convert(*op.Cid)
		if err != nil {
			return FirehoseMessage{}, fmt.Errorf("firehose: resolving op cid: %w", err)
		}

		record, err := records.Decode(meta.Collection, data)
		if err != nil {
			return FirehoseMessage{}, fmt.Errorf("%w: %v", ErrCborDecode, err)
		}

		var kind OperationKind
		switch op.Action {
		case "create":
			kind = OpCreate
		case "update":
			kind = OpUpdate
		default:
			return FirehoseMessage{}, &UnknownCommitOperationError{Action: op.Action, Meta: meta, Record: record}
		}

		ops = append(ops, Operation{Kind: kind, Meta: meta, Record: record, CID: resolved.String()})
	}

	return FirehoseMessage{
		Kind: KindCommit,
		Commit: &Commit{
			Did:        did,
			Rev:        env.Rev,
			Time:       commitTime,
			Operations: ops,
			Envelope:   envelope,
		},
	}, nil
}
