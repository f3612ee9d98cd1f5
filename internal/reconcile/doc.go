// Package reconcile brings the catalog and the working directories back into
// agreement.
//
// Run is called once at boot, before the watcher starts:
//  1. ensure the landing, published and thumbnail directories exist
//  2. remove catalog entries whose published file is missing
//  3. delete abandoned upload artifacts from the landing directory and
//     enqueue every other file found there
//
// A failing step is logged and the remaining steps still run. StartSweeper
// then removes chunk and temp artifacts older than the configured age for
// the lifetime of the process.
package reconcile
