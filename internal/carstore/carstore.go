// Package carstore materializes a CAR v1 byte blob (a commit's embedded
// "blocks" field) into a content-addressed block table and
// resolves operations against it by CID.
package carstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	car "github.com/ipld/go-car/v2"
	"github.com/multiformats/go-multihash"

	"github.com/JWhist/atproto-firehose/internal/cidcompat"
)

// ErrContentMismatch is returned when a block's bytes don't hash to its
// declared CID — a sign of upstream corruption.
var ErrContentMismatch = errors.New("carstore: block content does not match its cid")

type block struct {
	cid  cid.Cid
	data []byte
}

// Blocks is the materialized (CID, bytes) table for one commit's CAR blob.
// Entries keep the CAR's block order; lookups are by content address.
type Blocks struct {
	entries []block
}

// Decode reads a complete CAR v1 stream and validates every block's CID
// against its content before returning the table.
func Decode(blob []byte) (*Blocks, error) {
	br, err := car.NewBlockReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("carstore: opening car reader: %w", err)
	}

	var entries []block
	for {
		blk, err := br.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("carstore: reading car block: %w", err)
		}
		if err := verifyBlock(blk.Cid(), blk.RawData()); err != nil {
			return nil, err
		}
		entries = append(entries, block{cid: blk.Cid(), data: blk.RawData()})
	}
	return &Blocks{entries: entries}, nil
}

func verifyBlock(c cid.Cid, data []byte) error {
	prefix := c.Prefix()
	sum, err := multihash.Sum(data, prefix.MhType, prefix.MhLength)
	if err != nil {
		return fmt.Errorf("carstore: hashing block %s: %w", c, err)
	}
	if !bytes.Equal([]byte(sum), []byte(c.Hash())) {
		return fmt.Errorf("%w: %s", ErrContentMismatch, c)
	}
	return nil
}

// Find resolves the block whose CID equals want under cidcompat's
// cross-encoding equality. Duplicate CIDs within one commit are not
// specified behavior upstream; like the reference implementation, Find
// resolves by first match and leaves treating duplicates as corruption to
// the caller.
func (b *Blocks) Find(want cidcompat.RawCID) ([]byte, bool) {
	target, err := cidcompat.Convert(want)
	if err != nil {
		return nil, false
	}
	for _, e := range b.entries {
		if cidcompat.Equal(e.cid, target) {
			return e.data, true
		}
	}
	return nil, false
}

// Len reports how many blocks were materialized.
func (b *Blocks) Len() int {
	return len(b.entries)
}
