package upload

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// artifactMarker separates a session id from the per-session suffixes.
	artifactMarker = ".clypse-"
	chunkMarker    = ".clypse-chunk."
	tempSuffix     = ".clypse-temp"
	titleSuffix    = ".meta"
	partSuffix     = ".part"

	maxSessionIDLen = 255
)

// ChunkFileName is the landing file name holding one chunk of a session.
func ChunkFileName(sessionID string, index int) string {
	return fmt.Sprintf("%s%s%d", sessionID, chunkMarker, index)
}

// TempFileName is the landing file name a session is assembled into.
func TempFileName(sessionID string) string {
	return sessionID + tempSuffix
}

// TitleFile returns the side file holding the caller-declared title of a
// staged file.
func TitleFile(stagedPath string) string {
	return stagedPath + titleSuffix
}

// IsChunkOrTemp reports whether name is an in-flight session artifact.
func IsChunkOrTemp(name string) bool {
	return strings.Contains(name, chunkMarker) || strings.HasSuffix(name, tempSuffix)
}

// IsTitleFile reports whether name is a title side file.
func IsTitleFile(name string) bool {
	return strings.HasSuffix(name, titleSuffix)
}

// IsArtifact reports whether name is any pipeline artifact that must never be
// ingested: chunk fragments, assembly temp files, title side files.
func IsArtifact(name string) bool {
	return IsChunkOrTemp(name) || IsTitleFile(name)
}

// validSessionID rejects ids that could address files outside the landing
// directory.
func validSessionID(id string) bool {
	if id == "" || len(id) > maxSessionIDLen || id == "." || id == ".." {
		return false
	}
	if strings.ContainsAny(id, "/\\\x00") {
		return false
	}
	return filepath.Base(id) == id
}

// keyedMutex serializes work per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
