// Package canon provides canonical JSON encoding and content hashing for
// condition trees.
//
// Structural identity of comparisons and operations (the basis of operand
// set deduplication and query equality) is computed by encoding a node's
// canonical form with MarshalCanonical and hashing it with Hash.
//
// # Encoding Rules
//
// MarshalCanonical follows RFC 8785 where it matters for determinism:
//   - Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//   - No HTML escaping (< > & are NOT escaped)
//   - Strings are NFC normalized
//
// Unlike strict RFC 8785, null and floats are accepted: condition values
// legitimately contain both. Floats are written with the shortest
// representation that round-trips (strconv 'g', -1).
//
// # Domain Separation
//
// Hash prefixes the payload with a domain string and a 0x00 separator so
// that a comparison and an operation can never collide even when their
// encodings happen to match.
package canon
