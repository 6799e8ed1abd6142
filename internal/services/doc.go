// Package services holds the logic behind the read-only HTTP endpoints:
// service health and the dataset catalog.
//
// Services take their dependencies through constructors and return plain
// values or sentinel errors; mapping those to HTTP responses is left to
// the transport layer.
//
// # Health
//
// HealthService reports liveness, readiness (data directory present and
// writable, hub and job queue attached) and version information.
//
// # Datasets
//
// DatasetService loads the markdown catalog and cross-checks the record
// counts it claims, optionally against the files on disk:
//
//	report, err := datasets.Check(ctx, true)
//	if errors.Is(err, services.ErrCatalogNotFound) {
//	    // no catalog configured
//	}
package services
