package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrims-network/guildkeeper/pkg/doccache"
)

type testDoc struct {
	ID    string   `bson:"_id"`
	Label string   `bson:"label"`
	Tags  []string `bson:"tags"`
}

func newTestCollection() *MemoryCollection[testDoc] {
	return NewMemoryCollection[testDoc]("test_docs",
		func(id string) *testDoc { return &testDoc{ID: id} },
		func(doc *testDoc, field string) *[]string { return &doc.Tags },
	)
}

func newTestFeed(t *testing.T) (*MemoryCollection[testDoc], *doccache.Cache[testDoc], *Feed[testDoc]) {
	t.Helper()
	coll := newTestCollection()
	cache := doccache.New[testDoc]("test_docs")
	feed := NewFeed(coll, cache, func(d *testDoc) string { return d.ID })
	return coll, cache, feed
}

func TestFeedReloadPopulatesCache(t *testing.T) {
	coll, cache, feed := newTestFeed(t)
	ctx := context.Background()

	require.NoError(t, coll.UpsertOne(ctx, "a", &testDoc{ID: "a", Label: "one"}))
	require.NoError(t, coll.UpsertOne(ctx, "b", &testDoc{ID: "b", Label: "two"}))

	require.NoError(t, feed.Reload(ctx))

	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, "one", cache.Get("a").Label)
	assert.True(t, cache.Initialized().Ready())
}

func TestFeedReloadIsIdempotent(t *testing.T) {
	coll, cache, feed := newTestFeed(t)
	ctx := context.Background()

	require.NoError(t, coll.UpsertOne(ctx, "a", &testDoc{ID: "a", Label: "one"}))
	require.NoError(t, feed.Reload(ctx))

	events := 0
	cache.On(doccache.EventAdd, func(*testDoc) { events++ })
	cache.On(doccache.EventDelete, func(*testDoc) { events++ })

	// no remote mutation in between: the second diff must be empty
	require.NoError(t, feed.Reload(ctx))

	assert.Zero(t, events)
}

func TestFeedReloadDiffsChanges(t *testing.T) {
	coll, cache, feed := newTestFeed(t)
	ctx := context.Background()

	require.NoError(t, coll.UpsertOne(ctx, "keep", &testDoc{ID: "keep", Label: "same"}))
	require.NoError(t, coll.UpsertOne(ctx, "change", &testDoc{ID: "change", Label: "before"}))
	require.NoError(t, coll.UpsertOne(ctx, "drop", &testDoc{ID: "drop", Label: "doomed"}))
	require.NoError(t, feed.Reload(ctx))

	require.NoError(t, coll.UpsertOne(ctx, "change", &testDoc{ID: "change", Label: "after"}))
	_, err := coll.DeleteOne(ctx, "drop")
	require.NoError(t, err)
	require.NoError(t, coll.UpsertOne(ctx, "new", &testDoc{ID: "new", Label: "fresh"}))

	var added, deleted []string
	cache.On(doccache.EventAdd, func(d *testDoc) { added = append(added, d.ID) })
	cache.On(doccache.EventDelete, func(d *testDoc) { deleted = append(deleted, d.ID) })

	require.NoError(t, feed.Reload(ctx))

	// unchanged documents produce no events; updated ones delete+add
	assert.ElementsMatch(t, []string{"change", "new"}, added)
	assert.ElementsMatch(t, []string{"change", "drop"}, deleted)
	assert.Equal(t, "after", cache.Get("change").Label)
	assert.Nil(t, cache.Get("drop"))
}

func TestFeedStartFallsBackToPolling(t *testing.T) {
	coll, cache, feed := newTestFeed(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, coll.UpsertOne(ctx, "a", &testDoc{ID: "a", Label: "one"}))

	// memory collections reject Watch; the feed must degrade to polling
	feed.Start(ctx, ModeStreaming)
	assert.Equal(t, 1, cache.Len())

	require.NoError(t, coll.UpsertOne(ctx, "b", &testDoc{ID: "b", Label: "two"}))

	require.Eventually(t, func() bool {
		return cache.Has("b")
	}, 2*time.Second, 10*time.Millisecond, "mutation hook should schedule a resync")
}

func TestFeedPollingPicksUpDeletes(t *testing.T) {
	coll, cache, feed := newTestFeed(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, coll.UpsertOne(ctx, "a", &testDoc{ID: "a"}))
	feed.Start(ctx, ModePolling)
	require.True(t, cache.Has("a"))

	_, err := coll.DeleteOne(ctx, "a")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !cache.Has("a")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMemoryCollectionPushPull(t *testing.T) {
	coll := newTestCollection()
	ctx := context.Background()

	// push against an absent document upserts it
	require.NoError(t, coll.PushField(ctx, "u1", "tags", []string{"r1", "r2"}))

	doc, err := coll.FindOne(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, doc.Tags)

	require.NoError(t, coll.PullField(ctx, "u1", "tags", []string{"r1"}))

	doc, err = coll.FindOne(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, doc.Tags)
}

func TestMemoryCollectionFindOneNotFound(t *testing.T) {
	coll := newTestCollection()
	_, err := coll.FindOne(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCollectionClonesDocuments(t *testing.T) {
	coll := newTestCollection()
	ctx := context.Background()

	original := &testDoc{ID: "a", Tags: []string{"x"}}
	require.NoError(t, coll.UpsertOne(ctx, "a", original))

	fetched, err := coll.FindOne(ctx, "a")
	require.NoError(t, err)
	fetched.Tags[0] = "mutated"

	again, err := coll.FindOne(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "x", again.Tags[0], "callers must not share memory with stored documents")
}
