// Package rejoin persists the role list a user held when they left, so a
// later rejoin can restore it and offline permission checks can still see
// the roles the user would have.
package rejoin
