// Package doccache implements the in-memory document mirror that backs the
// permission engine: a keyed cache per collection with add/delete
// subscriptions, an initialized gate, reload signaling and a registry that
// coordinates full resyncs across every registered cache.
//
// All mutation goes through Set/Delete so that derived indexes stay
// consistent; the read path is synchronous and lock-cheap because it runs on
// every permission-gated interaction.
package doccache
