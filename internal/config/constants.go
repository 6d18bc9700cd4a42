package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Upper bound for every relation store and identity provider call.
const DefaultBackendTimeout = 5 * time.Second

// Directory client settings
const (
	DirectoryRequestTimeout = 10 * time.Second
	DirectoryCacheSize      = 512

	// How long an ID the listing did not contain is answered as not found
	// without refetching.
	DirectoryMissTTL = 30 * time.Second
)

// Maximum request body accepted by the API
const MaxRequestBodySize = 1 << 20
