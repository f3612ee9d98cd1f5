// Package library is the read and delete side of the catalog. It shapes
// entries for the API and owns the cascade that runs when a published file
// disappears: row, thumbnail, then a video:deleted notification.
package library
