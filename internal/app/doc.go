// Package app wires the LicenseLock service together: configuration,
// logging and telemetry, the blob store, the domain registries, the
// live event hub and the HTTP server.
//
// # Initialization Flow
//
// The startup sequence:
//
//	1. Load configuration from environment and optional YAML file
//	2. Initialize slog and OpenTelemetry
//	3. Open the configured store backend (memory, file or redis)
//	4. Build the audit log, alert engine, registries and auth service
//	5. Assemble the router and middleware chain
//	6. Serve until the context is cancelled, then shut down in order
//
// # Usage
//
//	application, err := app.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := application.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Shutdown drains in-flight requests, stops the event hub and the
// session reaper, flushes telemetry and closes the store. The package
// never calls os.Exit; errors flow back to main.
package app
