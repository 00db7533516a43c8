// Package server exposes polled devices over HTTP.
//
// # Endpoints
//
//	GET  /health                          liveness and per-device health
//	GET  /metrics                         Prometheus exposition
//	GET  /api/devices                     configured devices with identity
//	GET  /api/devices/:host/snapshot      latest snapshot
//	GET  /api/devices/:host/entities      projected entity states
//	POST /api/devices/:host/boost         press the boost button
//	PUT  /api/devices/:host/mode          body {"enabled": true|false}
//	GET  /api/devices/:host/ws            WebSocket push of entity states
//
// Reads never touch the device: they serve the latest snapshot. Writes go
// to the device and return once it has acknowledged them.
//
// # WebSocket
//
// A client receives the current states on connect and again after every
// published snapshot. Messages are JSON objects of the form
//
//	{"type": "states", "host": "...", "cycle": 12, "states": [...]}
//
// A slow client whose buffer fills misses intermediate updates; the next
// message carries the full state again.
//
// # TLS
//
// Setting CertFile and KeyFile serves HTTPS with TLS 1.2 or newer.
//
// # Graceful Shutdown
//
// Shutdown stops accepting connections, closes WebSocket clients and waits
// for in-flight requests to finish or the context to end.
package server
