// Package config provides centralized configuration management for finsight.
// It loads configuration from environment variables and an optional YAML file,
// validates it, and resolves the on-disk data layout used by every pipeline stage.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. Configuration file (config.yaml or configs/config.yaml)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern FINSIGHT_* for namespacing:
//
//	FINSIGHT_SERVER_PORT=8080
//	FINSIGHT_LOGGING_LEVEL=debug
//	FINSIGHT_PATHS_DATA_DIR=/srv/finsight/data
//	FINSIGHT_AUGMENT_RATIO=0.1
//
// # Path Management
//
// The Paths type is the single source of truth for dataset locations:
//
//	paths := config.NewPaths(cfg.Paths)
//	merged := paths.MergedDataset   // data/processed/merged_dataset.jsonl
//	stats := paths.TokenStats       // data/processed/token_stats.csv
package config
