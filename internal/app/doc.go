// Package app wires the finsight web service together and manages its
// lifecycle.
//
// # Initialization Flow
//
//	1. Initialize logging and resolve the data directory layout
//	2. Initialize OpenTelemetry and the pipeline metrics
//	3. Create the websocket hub, the operation manager with every pipeline
//	   step, the job queue and the read-only services
//	4. Build the chi router and the HTTP server
//
// Start launches the hub, the job workers, the janitor that drops finished
// jobs after an hour, and the listener. Stop shuts them down in reverse
// order, cancelling running operations first.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return err
//	}
//	return application.Run()
package app
