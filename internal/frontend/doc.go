// Package frontend connects live protocol handlers to the dispatcher.
//
// A front-end protocol creates one handler per endpoint it serves. Each
// handler exposes an Acceptor, the capability the dispatcher calls to carry
// out a command. The Registry maps endpoint IDs to the current handler; the
// Manager decides which endpoints each protocol serves and keeps the
// Registry in step with the catalog.
//
// # Architecture
//
//	┌──────────────┐  ListEndpoints   ┌────────────────────────────────────┐
//	│   catalog    │◀─────────────────│              Manager               │
//	└──────────────┘  EndpointConfig  │  single worker goroutine:          │
//	                                  │  Sync → Evaluate → Add / Remove    │
//	                                  └──────┬──────────────────┬──────────┘
//	                                         │ Add/Remove       │ Protocol.Add
//	                                         ▼                  ▼
//	┌──────────────┐   Lookup   ┌─────────────────┐   ┌──────────────────┐
//	│  dispatcher  │───────────▶│    Registry     │   │ loopback, mqtt … │
//	└──────────────┘  lock-free │ (atomic snapshot)│   └──────────────────┘
//	                            └─────────────────┘
//
// # Thread Safety
//
// Registry reads load an immutable snapshot and never block. Writes copy the
// map and publish a new snapshot; they are serialized by a mutex, and the
// Manager additionally funnels every add, remove and shutdown through one
// goroutine so that a protocol never sees two lifecycle calls at once.
//
// Acceptors must accept concurrent Issue calls. No ordering is promised
// between them.
package frontend
