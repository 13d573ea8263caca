// Package archive stores the content of completed conversations.
//
// The relay never persists anything on the request path. When a stream
// completes, the pump hands a Transcript to the asynchronous recorder
// (package archive/recorder), which writes it to a Storage backend
// (package archive/storage) off the request path. Old transcripts are pruned
// on a cron schedule (package archive/retention).
//
// Only assistant text is kept. It is pulled out of each chunk with gjson
// without decoding the chunk, so unknown chunk shapes are simply skipped:
//
//	acc := archive.NewAccumulator(0)
//	for chunk := range chunks {
//	    acc.Add(chunk)
//	}
//	content := acc.Content()
package archive
