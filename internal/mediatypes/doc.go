// Package mediatypes holds the container allow-list and MIME table shared by
// the upload, ingest and streaming packages.
//
// It has no dependencies beyond the standard library so any package can import
// it without creating cycles.
//
//	if !mediatypes.IsAllowedVideo(name) {
//	    return upload.ErrDisallowedExtension
//	}
package mediatypes
