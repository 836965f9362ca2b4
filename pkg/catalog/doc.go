// Package catalog defines static connection metadata for the supported
// inference providers.
//
// A Descriptor carries everything needed to talk to one provider family:
// base URL, endpoint paths, default headers, per-window request and token
// budgets, and the environment variable that supplies its API key. The
// built-in descriptors cover OpenRouter, Hugging Face, and Together AI;
// additional OpenAI-compatible providers can be declared in a YAML
// overrides file.
//
// Descriptors are immutable after load. Runtime state (usage counters,
// status) lives in the usage package, never here.
package catalog
