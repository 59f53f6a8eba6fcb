// Package snapshot persists normalized documents to SQLite so that a client
// can start from local data and answer queries offline.
//
// One table holds every document, keyed by (doctype, id), with the document
// wire form as a JSON body. Writes are upserts that skip unchanged rows by
// content hash. Reads decode bodies back into ir.Document values.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability and throughput
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// Queries are compiled by internal/querysql and always end with
// "ORDER BY ... id ASC COLLATE BINARY".
package snapshot
