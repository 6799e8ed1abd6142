// Package operations chains the dataset stages into operations.
//
// Core Components:
//
// Step: a single unit of work with an ID, dependencies and request
// parameters. The dataset steps (prepare, preprocess, features, augment,
// ner) wrap the stage packages and record a ProcessingSummary each.
//
// Registry: registers steps and orders them by dependency, earliest
// registered first among ready steps.
//
// Manager: runs an operation sequentially with per-attempt timeouts,
// exponential retry for retryable errors, and skipping of dependents when a
// step fails. Every change is published through the StatusBroadcaster as a
// complete OperationSnapshot.
//
// JobQueue: runs operations asynchronously on a worker pool for the HTTP API,
// persisting jobs in a JobStore.
//
// Example usage:
//
//	manager := operations.NewManager(hub, nil, nil, logger)
//	err := operations.RegisterPipelineSteps(manager.GetRegistry(), operations.StageDeps{
//		Config: cfg,
//		Paths:  paths,
//		Logger: logger,
//	})
//	resp, err := manager.Execute(ctx, operations.OperationRequest{Step: operations.StepIDPrepare})
package operations
