// Package oracle provides the menu-selection capability the navigator drives:
// given a query and an enumerated option set, return exactly one offered name.
// It supports Google Gemini and OpenAI backends, with constrained decoding,
// transport retries, rate limiting and per-call timeouts.
package oracle
