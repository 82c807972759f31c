package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/roach88/mongoversioning/internal/doc"
)

// Mongo is a VersionStore writing history collections into a MongoDB
// database, normally the same database as the versioned source collections.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ VersionStore = (*Mongo)(nil)

// OpenMongo connects to uri and verifies the connection. The database is the
// one named in the uri path.
func OpenMongo(ctx context.Context, uri string) (*Mongo, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("parse store uri: %w", err)
	}
	if cs.Database == "" {
		return nil, fmt.Errorf("store uri %q names no database", uri)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping store: %w", err)
	}

	return &Mongo{client: client, db: client.Database(cs.Database)}, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Append inserts the snapshot as a new history document.
func (m *Mongo) Append(ctx context.Context, collection string, snap Snapshot) error {
	if snap.DocID == nil {
		return fmt.Errorf("append to %s: snapshot has no document id", collection)
	}
	if _, err := m.db.Collection(collection).InsertOne(ctx, snap.Document().D()); err != nil {
		return fmt.Errorf("append to %s: %w", collection, err)
	}
	return nil
}

// LatestFor returns the last inserted snapshot of docID ($natural order).
func (m *Mongo) LatestFor(ctx context.Context, collection string, docID doc.Value) (Snapshot, bool, error) {
	filter := bson.D{{Key: FieldID, Value: doc.ToBSON(docID)}}
	opts := options.FindOne().SetSort(bson.D{{Key: "$natural", Value: -1}})

	return m.findOne(ctx, collection, filter, opts, "latest snapshot")
}

// LastSnapshot returns the snapshot with the greatest versioning_ts.
func (m *Mongo) LastSnapshot(ctx context.Context, collection string) (Snapshot, bool, error) {
	opts := options.FindOne().SetSort(bson.D{
		{Key: FieldTS, Value: -1},
		{Key: FieldID, Value: -1},
	})

	return m.findOne(ctx, collection, bson.D{}, opts, "last snapshot")
}

// History returns every snapshot of docID in insertion order.
func (m *Mongo) History(ctx context.Context, collection string, docID doc.Value) ([]Snapshot, error) {
	filter := bson.D{{Key: FieldID, Value: doc.ToBSON(docID)}}
	opts := options.Find().SetSort(bson.D{{Key: "$natural", Value: 1}})

	cur, err := m.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer cur.Close(ctx)

	snaps := []Snapshot{}
	for cur.Next(ctx) {
		obj, err := doc.FromBSON(cur.Current)
		if err != nil {
			return nil, err
		}
		snap, err := SnapshotFromDocument(obj)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return snaps, nil
}

func (m *Mongo) findOne(ctx context.Context, collection string, filter bson.D, opts *options.FindOneOptions, what string) (Snapshot, bool, error) {
	raw, err := m.db.Collection(collection).FindOne(ctx, filter, opts).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("query %s: %w", what, err)
	}

	obj, err := doc.FromBSON(raw)
	if err != nil {
		return Snapshot{}, false, err
	}
	snap, err := SnapshotFromDocument(obj)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}
