// Package server hosts the upload gateway behind a single HTTP server.
//
// The server builds a consistent middleware chain of request identification,
// logging, security headers, CORS, metrics, rate limiting, and API key auth
// so every endpoint shares the same protections and instrumentation.
package server
