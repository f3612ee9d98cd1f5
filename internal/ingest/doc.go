// Package ingest turns staged uploads into published catalog entries.
//
// A Queue is fed by three producers: the upload assembler right after a file
// is staged, the landing directory watcher and the startup reconciler. All of
// them call Enqueue, which deduplicates by cleaned path and never blocks.
// A single worker goroutine drains the queue in FIFO order, so at most one
// file is probed, moved, thumbnailed and cataloged at any instant.
//
// Per item the worker:
//  1. skips files that no longer exist
//  2. deletes files with a disallowed extension
//  3. probes metadata (failure deletes the staged file)
//  4. picks a storage name free on disk and in the catalog
//  5. moves the file into the published directory
//  6. applies faststart, best effort
//  7. generates the thumbnail (failure rolls the publish back)
//  8. creates the catalog entry
//  9. publishes a video:added notification
package ingest
