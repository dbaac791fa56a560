// Package core is the storage engine behind a docdb storage unit.
//
// A unit is one SQLite database holding five tables: typed JSON documents,
// directed labelled relationships between them, an append-only event log,
// webhook subscriptions and a lazily built embedding index. SQLiteStore is
// the entry point; every mutation of a document or relationship records an
// event in the same call and copies it into the unit's pipeline buffer.
//
// # Key Components
//
//   - Documents: CRUD plus where/orderBy queries pushed down as json_extract
//     predicates through a filter.Translator.
//   - Relationships: unique (from, relation, to) edges with upserted metadata,
//     forward, reverse, bidirectional, multi-hop and metadata-filtered walks.
//   - Events: wildcard listing, cursor pagination, replay and rebuild of an
//     entity from its history.
//   - Embeddings: lazy generation with a deterministic fallback, bulk and
//     background batch generation.
//   - Search: substring full-text scoring, semantic similarity and Reciprocal
//     Rank Fusion of the two.
//
// # Concurrency
//
// A unit expects one logical request at a time. The engine takes no lock
// around a logical operation; hosts that accept concurrent requests serialize
// them per namespace. Background embedding work is the exception and races
// last-write-wins on the embedding key.
package core
