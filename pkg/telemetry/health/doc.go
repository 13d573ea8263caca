// Package health serves the relay's liveness, readiness and version endpoints.
//
// /health answers 200 while the process runs and reports the number of
// active streams. /ready runs the registered component checks (for example
// the transcript archive) concurrently with a per-check timeout and answers
// 503 when one fails or once the relay has started draining for shutdown.
//
//	checker := health.New(2 * time.Second)
//	checker.SetActiveStreams(registry.Len)
//	checker.RegisterCheck("archive", func(ctx context.Context) error {
//	    _, err := store.Count(ctx)
//	    return err
//	})
//	r.Get("/health", checker.LivenessHandler())
//	r.Get("/ready", checker.ReadinessHandler())
package health
