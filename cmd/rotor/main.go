// Rotor is a provider rotation and quota-aware failover engine for
// multi-provider AI chat requests.
//
// It keeps a ring of configured providers, tracks per-provider request
// and token consumption in rolling windows, and rotates away from
// providers that run out of quota or reject their credentials.
//
// Usage:
//
//	# Send a chat message through the rotation
//	rotor chat "Explain WAL mode in SQLite"
//
//	# List models from every active provider
//	rotor models
//
//	# Show provider statuses and usage
//	rotor status
//
//	# Store an API key for a provider
//	rotor keys set openrouter
//
//	# Show version information
//	rotor version
package main

func main() {
	Execute()
}
