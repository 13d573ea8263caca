// Relay is a streaming-session proxy for OpenAI-compatible completion APIs.
//
// It forwards completion calls to the provider named by each request's
// credentials, relays streamed chunks to the client over Server-Sent Events
// or WebSocket, and keeps every live stream in a session registry so that
// operators can list and abort them.
//
// Usage:
//
//	# Start the relay with defaults (listens on 127.0.0.1:8787)
//	relay run
//
//	# Start with a configuration file
//	relay run --config /etc/relay/relay.yaml
//
//	# List and abort live streams through the admin API
//	relay sessions list
//	relay sessions abort 5f0c9a3e-2b1d-4c8e-9f7a-1e2d3c4b5a69
//
//	# Browse and prune archived transcripts
//	relay archive list --limit 20
//	relay archive prune
package main

import "os"

func main() {
	os.Exit(Execute())
}
