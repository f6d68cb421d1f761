package subscription

import (
	"github.com/JWhist/atproto-firehose/internal/firehose"
	"github.com/JWhist/atproto-firehose/internal/models"
)

// FromFirehoseMessage adapts a decode pipeline result to the fan-out API's
// JSON event shape. Only Commit carries operations; every other kind is
// forwarded with empty Ops so a repository/path/keyword filter simply never
// matches it. Since every filter created through Manager carries a keyword,
// and a filter with no criteria matches nothing, identity, account, handle,
// and tombstone events reach no subscriber.
func FromFirehoseMessage(msg firehose.FirehoseMessage) models.ATEvent {
	if msg.Kind == firehose.KindCommit && msg.Commit != nil {
		c := msg.Commit
		ops := make([]models.ATOperation, 0, len(c.Operations))
		for _, op := range c.Operations {
			ops = append(ops, models.ATOperation{
				Action:     op.Kind.String(),
				Path:       op.Meta.Collection + "/" + op.Meta.Rkey,
				Collection: op.Meta.Collection,
				Rkey:       op.Meta.Rkey,
				Record:     op.Record,
				Cid:        op.CID,
			})
		}
		return models.ATEvent{Event: "commit", Did: c.Did.String(), Time: c.Time.String(), Kind: "commit", Ops: ops}
	}
	return models.ATEvent{Event: msg.Kind.String(), Kind: msg.Kind.String()}
}
