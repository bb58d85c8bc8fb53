// Package profiles mirrors user profile documents and maintains a
// display-name lookup over them.
package profiles
