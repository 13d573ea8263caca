// Package types defines the JSON bodies the relay itself produces.
//
// Successful responses are never modelled here: upstream bodies and stream
// chunks are relayed byte for byte. Only failures the relay detects or
// classifies are rendered, always in the same shape:
//
//	{"error": "upstream unreachable", "code": "connection_error", "details": "..."}
//
// The same body is used for one-shot responses and, wrapped in a single data
// frame, as the terminal event of a failed stream.
package types
