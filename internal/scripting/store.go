package scripting

import "sync"

// LocalScriptStore holds the current source text of locally-authored
// override scripts, keyed by script ID (the file's base name without the
// .lua extension). It is the hand-off point between Watcher's fsnotify
// goroutine and whatever compiles an Engine for a given script ID next
// (spec §4.L supplement: locally-authored handler scripts, hot-reloadable
// without a client restart, layered on top of the object-embedded scripts
// the original source always compiles from).
type LocalScriptStore struct {
	mu      sync.RWMutex
	sources map[string]string
}

// NewLocalScriptStore returns an empty store.
func NewLocalScriptStore() *LocalScriptStore {
	return &LocalScriptStore{sources: make(map[string]string)}
}

// Set records source as the current text for scriptID, overwriting any
// prior version.
func (s *LocalScriptStore) Set(scriptID, source string) {
	s.mu.Lock()
	s.sources[scriptID] = source
	s.mu.Unlock()
}

// Delete removes scriptID's source, e.g. after its file is removed or
// renamed away.
func (s *LocalScriptStore) Delete(scriptID string) {
	s.mu.Lock()
	delete(s.sources, scriptID)
	s.mu.Unlock()
}

// Get returns scriptID's current source and whether it is present.
func (s *LocalScriptStore) Get(scriptID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[scriptID]
	return src, ok
}

// Len reports how many local override scripts are currently loaded.
func (s *LocalScriptStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sources)
}
