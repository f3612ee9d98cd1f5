// Package upload reassembles chunked uploads in the landing directory.
//
// Chunks are stored as "<session>.clypse-chunk.<index>". When the chunk with
// the last index arrives, every index is verified, the chunks are
// concatenated in index order into "<session>.clypse-temp", and the result is
// moved to the sanitized original file name (with a " (N)" suffix if another
// staged file already holds it). Fragments are deleted only after the move
// succeeds. A caller-declared title travels in a "<file>.meta" side file.
package upload
