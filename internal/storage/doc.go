// Package storage provides optional durable state for the bot: an
// append-only session audit log and a fired-slot mirror that survives a
// restart inside a slot's minute.
//
// Storage is best-effort everywhere: when disabled or failing, in-memory
// state stays authoritative and callers only log.
package storage
