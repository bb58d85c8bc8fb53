// Package async provides safe goroutine helpers used by the cache reload
// coordinator and the role synchronizer: panic recovery, timeout enforcement
// and a bounded worker pool for fan-out work like per-member reconciliation.
package async
