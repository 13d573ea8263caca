// Package session tracks in-flight streams so they can be aborted on demand
// or torn down when the relay shuts down.
//
// A stream is represented by a Record: a session id, a cancellation Token, the
// outbound Sink and some observability metadata. The Registry owns records
// while their streams are live. It is the only shared mutable structure in the
// relay and every access to it is serialized by one mutex.
//
// # Cancellation
//
// Every stream has exactly one Token. Both producers of cancellation, an
// explicit abort and a failed write to the client, signal the same token, so
// the upstream call and the pump observe a single stop signal regardless of
// origin. The first cause recorded wins:
//
//	token := session.NewToken(r.Context())
//	defer token.Cancel(nil)
//
//	rec := registry.Register(id, sink, token, metadata)
//	defer registry.Release(rec)
//
// # Lifecycle
//
// Registration with an id that is already present replaces the existing
// record (last write wins) without cancelling it. Release only removes a
// record if it is still the current one for its id, so an older stream
// exiting never evicts its replacement.
//
// Abort and ShutdownAll claim the record under the lock. A stream calls
// Release before writing its terminal frame: a nil result means it still
// owns the sink, otherwise the claim's cause is returned and the stream ends
// without output.
package session
