// Package watcher reacts to filesystem changes in the landing and published
// directories.
//
// Files that appear in the landing directory are enqueued for ingestion once
// no write has been seen for the debounce window. Pipeline artifacts and
// hidden files are never enqueued. Files removed from the published
// directory are removed from the catalog, which cascades to the thumbnail
// and a deletion notification. The thumbnail subdirectory is not watched.
package watcher
