package oplog

import (
	"context"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// DefaultCollection is the replica set oplog collection name.
const DefaultCollection = "oplog.rs"

// defaultDatabase holds the oplog when the URI names no database.
const defaultDatabase = "local"

// MongoSource tails the oplog of a replica set member.
type MongoSource struct {
	uri        string
	collection string
}

// NewMongoSource creates a source reading <db>.<collection> where db is taken
// from uri (default "local") and collection defaults to oplog.rs.
func NewMongoSource(uri, collection string) *MongoSource {
	if collection == "" {
		collection = DefaultCollection
	}
	return &MongoSource{uri: uri, collection: collection}
}

// Open connects to the server and starts a tailable, await-data cursor with
// no idle timeout in oplog-replay mode.
//
// Each Open creates its own client; Close on the returned cursor disconnects it.
func (s *MongoSource) Open(ctx context.Context, f Filter) (Cursor, error) {
	cs, err := connstring.ParseAndValidate(s.uri)
	if err != nil {
		return nil, fmt.Errorf("parse oplog uri: %w", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = defaultDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.uri))
	if err != nil {
		return nil, fmt.Errorf("connect oplog source: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping oplog source: %w", err)
	}

	opts := options.Find().
		SetCursorType(options.TailableAwait).
		SetNoCursorTimeout(true).
		SetOplogReplay(true)

	cur, err := client.Database(dbName).Collection(s.collection).Find(ctx, f.BSON(), opts)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("open oplog cursor on %s.%s: %w", dbName, s.collection, err)
	}

	return &mongoCursor{client: client, cur: cur}, nil
}

// mongoCursor adapts a driver cursor to Cursor.
type mongoCursor struct {
	client *mongo.Client
	cur    *mongo.Cursor
}

// Next blocks on the tailable cursor until an entry arrives.
func (c *mongoCursor) Next(ctx context.Context) (Record, error) {
	for {
		if c.cur.Next(ctx) {
			return Decode(c.cur.Current)
		}
		if err := c.cur.Err(); err != nil {
			return Record{}, err
		}
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}
		// The server killed the cursor (e.g. it fell off the oplog window).
		if c.cur.ID() == 0 {
			return Record{}, io.EOF
		}
	}
}

// Close kills the server cursor and disconnects the client.
func (c *mongoCursor) Close(ctx context.Context) error {
	curErr := c.cur.Close(ctx)
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect oplog source: %w", err)
	}
	return curErr
}
