// Package analyser holds the policy units of a scan. Each analyser
// examines one object at a time, decides whether its headers or content
// are correct, optionally repairs it through the store gateway, and
// accumulates per-run statistics.
//
// Header analysers (Cache-Control, Content-Type) compare a computed
// desired value against the live header and fix mismatches with a
// metadata rewrite. Content analysers (JPEG, PNG, gzip) produce candidate
// optimised bytes and persist them only when the size reduction clears
// the configured thresholds.
package analyser
