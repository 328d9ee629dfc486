// Package indexsync keeps search indexes converged with tracked documents.
//
// A content mutation is recorded synchronously through the document store,
// which bumps updateVersion and flags the document as pending. An asynchronous
// job then takes the per-document lock, re-reads the document, flattens its
// content and writes it to the search index. The document is only confirmed as
// indexed when a conditional update proves that no newer version appeared in
// the meantime, so a slow job can never clobber a newer write.
//
// Deletes follow a two-phase handshake: DeleteDoc sets isDeleted, the job
// removes the document from the search index and sets isIndexDeleted, and the
// record is physically removed once both flags are set.
//
// Failed jobs never touch document metadata. The document stays pending and is
// picked up again by the next mutation or incremental rebuild.
//
// Per-document lifecycle:
//
//	Untracked -> PendingIndex -> Indexing -> Synced
//	             PendingDelete -> Deleting -> Purged
package indexsync
