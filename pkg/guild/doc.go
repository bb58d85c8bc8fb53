// Package guild abstracts the chat platform's live guild/member directory:
// an incrementally-updated cache of guilds, members, role-id lists and bans,
// plus role hierarchy comparison and audited role mutation.
//
// The permission engine and the role synchronizer are written against the
// Directory interface. Memory implements it for tests and as the seam a
// gateway adapter fills in production.
package guild
