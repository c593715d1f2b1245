// Hermes is a caching and governance proxy for batch word translation
// lookups.
//
// It answers batches from a layered cache (bloom pre-filter, in-memory
// LRU, persisted store) and fetches the rest from the upstream
// translation API under rate limiting, cost accounting, and a circuit
// breaker.
//
// Usage:
//
//	# Start the server with default configuration
//	hermes run
//
//	# Start with a custom configuration file
//	hermes run --config /path/to/config.yaml
//
//	# Validate a configuration file
//	hermes validate
//
//	# Show version information
//	hermes version
package main

func main() {
	Execute()
}
