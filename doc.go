// Package roster implements the client core of an OTP-authenticated
// user-roster service: the login state machine, session persistence, the
// role gate, and the mutation coordinator that keeps the displayed roster
// consistent after every write.
//
// Login flow:
//   - LoginState is an explicit tagged state (welcome, email entry, OTP
//     entry, authenticated). SessionManager owns the only live instance
//     and drives every transition, so verifying a code from the welcome
//     screen is a construction-time impossibility rather than a runtime
//     surprise.
//   - SessionManager talks to the Gateway for the OTP exchange, mirrors
//     the resulting session into a SessionStore, and restores it on the
//     next process start without re-verifying (the gateway rejects stale
//     tokens on use).
//
// Authorization:
//   - IsAllowed is the single source of truth for "can this role perform
//     this action". The UI consults it to decide which controls render and
//     Coordinator re-checks it immediately before every write, so hiding a
//     button is never the only thing standing between a USER and a delete.
//
// Mutations:
//   - Coordinator performs one CRUD operation at a time per record
//     identity and does not return until the forced post-write refetch has
//     settled. The refetch outcome travels separately from the write's own
//     result so callers can distinguish "write failed" from "write landed
//     but the roster re-read did not".
package roster
