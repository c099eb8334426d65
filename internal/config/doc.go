// Package config provides centralized configuration for the factor
// pipeline binaries. It loads from multiple sources, validates the
// result, and hands out one typed struct the rest of the code reads.
//
// # Configuration Sources
//
// Configuration is assembled in ascending precedence:
//
//	1. Built-in defaults (Default)
//	2. YAML file (QF_CONFIG, config.yaml, configs/config.yaml)
//	3. Environment variables (highest priority)
//
// A .env file in the working directory is read into the environment
// before processing, so local development overrides live next to the
// binary instead of in the shell.
//
// # Environment Variables
//
// All variables follow the QF_<SECTION>_<FIELD> pattern:
//
//	QF_DATABASE_DRIVER=sqlite3
//	QF_DATABASE_DSN=qfactor.db
//	QF_PROVIDER_BASE_URL=https://data.example.com
//	QF_CALCULATION_WORKERS=8
//	QF_ANALYSIS_GROUPS=5
//	QF_LOGGING_LEVEL=info
//	QF_METRICS_ENABLED=true
//
// # Validation
//
// Load rejects invalid configurations with a ConfigurationError naming
// the first offending field, so a binary never starts on settings the
// pipeline cannot honor.
package config
