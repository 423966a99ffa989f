package prefs

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
)

// HideImportGuide suppresses the import instructions once a user dismissed them.
const HideImportGuide = "hide_import_guide"

var known = map[string]bool{HideImportGuide: true}

var (
	ErrUnknownFlag  = errors.New("unknown preference flag")
	ErrInvalidScope = errors.New("invalid preference scope")
)

// maxCachedScopes bounds the in-memory cache; evicted scopes reload from the store.
const maxCachedScopes = 4096

var scopePattern = regexp.MustCompile(`^(?:global|(?:chat|user):-?[0-9]{1,20})$`)

// ValidScope reports whether scope is "global", "chat:<id>" or "user:<id>".
func ValidScope(scope string) bool {
	return scopePattern.MatchString(scope)
}

// Store persists boolean flags per scope (a user, a chat, or "global").
type Store interface {
	Load(ctx context.Context, scope string) (map[string]bool, error)
	Save(ctx context.Context, scope, key string, value bool) error
}

// Flags caches flags in memory. A scope is loaded from the store on first use;
// Set writes through before updating the cache.
type Flags struct {
	store Store

	mu     sync.Mutex
	scopes map[string]map[string]bool
}

func New(store Store) *Flags {
	return &Flags{store: store, scopes: make(map[string]map[string]bool)}
}

// Load reads scope from the store, replacing anything cached.
func (f *Flags) Load(ctx context.Context, scope string) (map[string]bool, error) {
	if !ValidScope(scope) {
		return nil, ErrInvalidScope
	}
	m, err := f.store.Load(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load preferences %s: %w", scope, err)
	}
	cached := make(map[string]bool, len(known))
	for k := range known {
		cached[k] = m[k]
	}
	f.mu.Lock()
	if _, ok := f.scopes[scope]; !ok && len(f.scopes) >= maxCachedScopes {
		f.evictLocked()
	}
	f.scopes[scope] = cached
	f.mu.Unlock()
	return copyFlags(cached), nil
}

// All returns every known flag for scope.
func (f *Flags) All(ctx context.Context, scope string) (map[string]bool, error) {
	f.mu.Lock()
	cached, ok := f.scopes[scope]
	f.mu.Unlock()
	if ok {
		return copyFlags(cached), nil
	}
	return f.Load(ctx, scope)
}

func (f *Flags) Get(ctx context.Context, scope, key string) (bool, error) {
	if !known[key] {
		return false, ErrUnknownFlag
	}
	all, err := f.All(ctx, scope)
	if err != nil {
		return false, err
	}
	return all[key], nil
}

func (f *Flags) Set(ctx context.Context, scope, key string, value bool) error {
	if !known[key] {
		return ErrUnknownFlag
	}
	if _, err := f.All(ctx, scope); err != nil {
		return err
	}
	if err := f.store.Save(ctx, scope, key, value); err != nil {
		return fmt.Errorf("save preference %s: %w", key, err)
	}
	f.mu.Lock()
	if cached, ok := f.scopes[scope]; ok {
		cached[key] = value
	}
	f.mu.Unlock()
	return nil
}

// evictLocked drops one cached scope other than "global". Callers hold f.mu.
func (f *Flags) evictLocked() {
	for k := range f.scopes {
		if k != "global" {
			delete(f.scopes, k)
			return
		}
	}
}

func copyFlags(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MemoryStore keeps flags for the life of the process.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]bool)}
}

func (m *MemoryStore) Load(_ context.Context, scope string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyFlags(m.data[scope]), nil
}

func (m *MemoryStore) Save(_ context.Context, scope, key string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[scope] == nil {
		m.data[scope] = make(map[string]bool)
	}
	m.data[scope][key] = value
	return nil
}
