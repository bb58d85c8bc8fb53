// Package api exposes the operator HTTP surface: health and metrics
// endpoints, the cache reload trigger and read-only permission queries.
package api
