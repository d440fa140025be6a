// Package server implements the relay core: the connection gateway, the
// event dispatcher, and the HTTP surface over the presence registry and room
// store.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, the dispatcher, routing, and HTTP handlers to keep
// the codebase maintainable and testable as the project grows.
package server
