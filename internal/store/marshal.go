package store

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/mongoversioning/internal/doc"
)

// marshalDocument encodes a snapshot as the BSON stored in the document column.
func marshalDocument(s Snapshot) ([]byte, error) {
	data, err := bson.Marshal(s.Document().D())
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// unmarshalDocument decodes a stored BSON document back into a Snapshot.
func unmarshalDocument(data []byte) (Snapshot, error) {
	obj, err := doc.FromBSON(bson.Raw(data))
	if err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return SnapshotFromDocument(obj)
}

// docKey renders a document identity as canonical JSON so that equal
// identities always compare equal as TEXT.
func docKey(id doc.Value) (string, error) {
	data, err := doc.MarshalCanonical(id)
	if err != nil {
		return "", fmt.Errorf("marshal document id: %w", err)
	}
	return string(data), nil
}
