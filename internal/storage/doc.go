package storage

// Package storage persists the host's operational state: the audit trail,
// digest subscriptions, and digest dedup keys. Schedule entries are kept in
// memory only; callers own their lifetime.
