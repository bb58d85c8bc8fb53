// Package permissions is the decision core: given a user and a position or
// permission descriptor, it answers granted, denied or indeterminate from
// the live guild directory, the position index and the rejoin snapshots.
//
// The read path is fully synchronous and in-memory; it is cheap enough to
// run on every gated interaction.
package permissions
