// Package store adapts the remote document store (MongoDB in production,
// an in-memory collection in tests and single-node deployments) to the
// document caches in pkg/doccache.
//
// The Feed type keeps one cache synchronized with one collection. It runs in
// streaming mode when the deployment supports change streams (replica sets)
// and falls back to full-reload polling after every mutating operation
// otherwise. Either way callers only ever read the cache; the feed is
// invisible to the permission engine.
//
// All identifiers are normalized to decimal strings at this boundary;
// store-specific numeric id types never leak past it.
package store
