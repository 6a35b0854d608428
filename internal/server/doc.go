// Package server implements the secure chat relay: a single-process
// WebSocket broadcast server whose clients exchange messages encrypted
// under one process-wide symmetric key.
//
// A connection must register before it can participate. On registration it
// receives the shared key and the current roster, everyone else gets a join
// notice, and from then on each inbound ciphertext is rate limited,
// decrypted, validated, re-encrypted with a fresh nonce, and fanned out to
// all registered connections including the sender.
//
// The security model is deliberate and worth stating plainly: every
// registered participant holds the same key and can therefore read all
// traffic. There is no per-user secrecy, no key rotation, and no identity
// authentication; usernames are self-asserted and sanitized. The key lives
// only in server memory and dies with the process.
//
// The implementation is organized into specialized files for configuration,
// the hub, clients, the crypto relay, rate limiting, routing, and HTTP
// handlers to keep the codebase maintainable and testable.
package server
