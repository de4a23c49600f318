// Package filesystem provides filesystem utility methods either not
// provided by the Go standard library or requiring atomicity guarantees
// the standard library doesn't give directly, such as atomic file writes.
package filesystem
