// Package compat implements the client for OpenAI-compatible chat
// completion APIs. OpenRouter and Together AI both speak this dialect
// and wrap this client with their own endpoints and limits.
package compat
