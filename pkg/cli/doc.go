/*
Package cli provides helpers shared by the relay command: exit codes,
result printing and signal handling.

Output Formatting:

Commands print tables for humans and JSON for scripts:

	p := cli.NewPrinter(os.Stdout, format)
	return p.Result(list, []string{"SESSION", "ELAPSED"}, rows, nil, "No active sessions.")

Tables are rendered with go-pretty. Color is only used on a terminal.

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, cancel := cli.SetupSignalHandler(context.Background())
	defer cancel()

SIGHUP requests a configuration reload:

	for range cli.ReloadSignal(ctx) {
		_ = watcher.Reload()
	}
*/
package cli
