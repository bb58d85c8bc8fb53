// Package audit normalizes platform audit-log entries (bans, role edits
// made outside this process) into events and fans them out to subscribers.
package audit
