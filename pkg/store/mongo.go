package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// MongoClient wraps the driver client and owns the database handle
type MongoClient struct {
	client *mongo.Client
	db     *mongo.Database
}

// ConnectMongo connects to MongoDB and verifies the connection with a ping
func ConnectMongo(ctx context.Context, uri, database string) (*MongoClient, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoClient{client: client, db: client.Database(database)}, nil
}

// Ping verifies connectivity; implements observability.Pinger
func (m *MongoClient) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Disconnect closes the underlying client
func (m *MongoClient) Disconnect(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// MongoCollection implements Collection against a Mongo collection
type MongoCollection[T any] struct {
	coll  *mongo.Collection
	hooks *mutationHooks
}

// NewMongoCollection returns a typed handle for the named collection
func NewMongoCollection[T any](m *MongoClient, name string) *MongoCollection[T] {
	return &MongoCollection[T]{
		coll:  m.db.Collection(name),
		hooks: newMutationHooks(),
	}
}

// Name returns the collection name
func (c *MongoCollection[T]) Name() string { return c.coll.Name() }

// Find returns every document in the collection
func (c *MongoCollection[T]) Find(ctx context.Context) ([]*T, error) {
	cursor, err := c.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.Name(), err)
	}
	var docs []*T
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.Name(), err)
	}
	return docs, nil
}

// FindOne returns the document with the given id
func (c *MongoCollection[T]) FindOne(ctx context.Context, id string) (*T, error) {
	var doc T
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find one %s: %w", c.Name(), err)
	}
	return &doc, nil
}

// UpsertOne replaces or inserts the document under id
func (c *MongoCollection[T]) UpsertOne(ctx context.Context, id string, doc *T) error {
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": id}, doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", c.Name(), err)
	}
	c.hooks.fire()
	return nil
}

// DeleteOne removes the document under id
func (c *MongoCollection[T]) DeleteOne(ctx context.Context, id string) (bool, error) {
	res, err := c.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", c.Name(), err)
	}
	c.hooks.fire()
	return res.DeletedCount > 0, nil
}

// PushField appends values to a string-array field, creating the document
// when absent
func (c *MongoCollection[T]) PushField(ctx context.Context, id string, field string, values []string) error {
	_, err := c.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$push": bson.M{field: bson.M{"$each": values}}},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("push %s.%s: %w", c.Name(), field, err)
	}
	c.hooks.fire()
	return nil
}

// PullField removes values from a string-array field
func (c *MongoCollection[T]) PullField(ctx context.Context, id string, field string, values []string) error {
	_, err := c.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$pull": bson.M{field: bson.M{"$in": values}}})
	if err != nil {
		return fmt.Errorf("pull %s.%s: %w", c.Name(), field, err)
	}
	c.hooks.fire()
	return nil
}

// Watch opens a change stream against the collection. A server without
// replication rejects the subscription; that rejection surfaces as
// ErrWatchUnsupported so the feed can fall back to polling.
func (c *MongoCollection[T]) Watch(ctx context.Context) (ChangeStream[T], error) {
	stream, err := c.coll.Watch(ctx, mongo.Pipeline{},
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		if isWatchUnsupported(err) {
			return nil, fmt.Errorf("watch %s: %w", c.Name(), ErrWatchUnsupported)
		}
		return nil, fmt.Errorf("watch %s: %w", c.Name(), err)
	}
	return &mongoChangeStream[T]{stream: stream}, nil
}

// changeStreamRequiresReplSet is the server error code a standalone mongod
// returns for $changeStream
const changeStreamRequiresReplSet = 40573

func isWatchUnsupported(err error) bool {
	var cmdErr mongo.CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	return cmdErr.Code == changeStreamRequiresReplSet ||
		strings.Contains(cmdErr.Message, "only supported on replica sets")
}

// OnMutation registers a hook fired after every mutating operation
func (c *MongoCollection[T]) OnMutation(fn func()) {
	c.hooks.add(fn)
}

type mongoChangeStream[T any] struct {
	stream *mongo.ChangeStream
}

// changeEvent is the subset of the raw change document the feed consumes
type changeEvent[T any] struct {
	OperationType string `bson:"operationType"`
	FullDocument  *T     `bson:"fullDocument"`
	DocumentKey   struct {
		ID interface{} `bson:"_id"`
	} `bson:"documentKey"`
}

func (s *mongoChangeStream[T]) Next(ctx context.Context) (Change[T], error) {
	for s.stream.Next(ctx) {
		var event changeEvent[T]
		if err := s.stream.Decode(&event); err != nil {
			return Change[T]{}, fmt.Errorf("decode change: %w", err)
		}

		id := NormalizeID(event.DocumentKey.ID)
		switch event.OperationType {
		case "insert":
			return Change[T]{Kind: ChangeInsert, ID: id, Doc: event.FullDocument}, nil
		case "update", "replace":
			return Change[T]{Kind: ChangeUpdate, ID: id, Doc: event.FullDocument}, nil
		case "delete":
			return Change[T]{Kind: ChangeDelete, ID: id}, nil
		default:
			// invalidate, drop etc. are not per-document changes
			continue
		}
	}
	if err := s.stream.Err(); err != nil {
		return Change[T]{}, fmt.Errorf("change stream: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Change[T]{}, err
	}
	return Change[T]{}, errors.New("change stream closed")
}

func (s *mongoChangeStream[T]) Close(ctx context.Context) error {
	return s.stream.Close(ctx)
}
