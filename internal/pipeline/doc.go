// Package pipeline wires analysers to key patterns and runs the
// concurrent scan over a bucket. Keys stream from the store listing into
// a fixed worker pool; each worker resolves the rule chain for a key and
// executes it against its own store handle, so one slow or failing object
// never stalls the rest of the scan.
package pipeline
