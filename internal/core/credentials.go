package core

import (
	"context"
	"log/slog"
	"sync"

	"github.com/target/companion-client/internal/data/cryptoutil"
	domainauth "github.com/target/companion-client/internal/domain/auth"
	"github.com/target/companion-client/internal/ports"
)

// CredentialStoreOptions groups dependencies for CredentialStore.
type CredentialStoreOptions struct {
	// Mirror is durable storage; nil keeps the credential in memory only.
	Mirror ports.CredentialMirror
	// Sealer protects the mirrored value; defaults to cryptoutil.PlainSealer.
	Sealer cryptoutil.Sealer
	Logger *slog.Logger
}

// CredentialStore is the single source of truth for the credential attached to outgoing requests.
//
// Writes are last-writer-wins single-value replacements. Get never blocks on I/O and never fails;
// mirror failures are logged and otherwise ignored because the mirror is only a fallback.
type CredentialStore struct {
	mu   sync.RWMutex
	cred domainauth.Credential

	mirror ports.CredentialMirror
	sealer cryptoutil.Sealer
	logger *slog.Logger
}

var _ ports.CredentialSource = (*CredentialStore)(nil)

// NewCredentialStore constructs an empty store. Call Rehydrate to load a mirrored value.
func NewCredentialStore(opts CredentialStoreOptions) *CredentialStore {
	sealer := opts.Sealer
	if sealer == nil {
		sealer = cryptoutil.PlainSealer{}
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "credential_store")
	}
	return &CredentialStore{
		mirror: opts.Mirror,
		sealer: sealer,
		logger: logger,
	}
}

// Set replaces the held credential and mirrors it. An empty credential is treated as Clear.
func (s *CredentialStore) Set(ctx context.Context, cred domainauth.Credential) {
	token := domainauth.Credential(cred.Token())
	if token == "" {
		s.Clear(ctx)
		return
	}

	s.mu.Lock()
	s.cred = token
	s.mu.Unlock()

	if s.mirror == nil {
		return
	}
	sealed, err := s.sealer.Seal([]byte(token))
	if err != nil {
		s.warn(ctx, "seal credential failed", err)
		return
	}
	if err := s.mirror.Save(ctx, sealed); err != nil {
		s.warn(ctx, "mirror credential failed", err)
	}
}

// Get returns the held credential. ok is false when the store is empty.
func (s *CredentialStore) Get() (domainauth.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, s.cred != ""
}

// Clear removes the credential from memory and from the mirror.
func (s *CredentialStore) Clear(ctx context.Context) {
	s.mu.Lock()
	s.cred = ""
	s.mu.Unlock()

	if s.mirror == nil {
		return
	}
	if err := s.mirror.Remove(ctx); err != nil {
		s.warn(ctx, "remove mirrored credential failed", err)
	}
}

// Rehydrate loads the mirrored credential when memory is empty. It reports whether a value was loaded.
// An unreadable mirror value is removed.
func (s *CredentialStore) Rehydrate(ctx context.Context) bool {
	if s.mirror == nil {
		return false
	}
	if _, ok := s.Get(); ok {
		return false
	}

	sealed, err := s.mirror.Load(ctx)
	if err != nil {
		s.warn(ctx, "load mirrored credential failed", err)
		return false
	}
	if sealed == "" {
		return false
	}
	raw, err := s.sealer.Open(sealed)
	if err != nil {
		s.warn(ctx, "open mirrored credential failed", err)
		if rmErr := s.mirror.Remove(ctx); rmErr != nil {
			s.warn(ctx, "remove unreadable credential failed", rmErr)
		}
		return false
	}

	token := domainauth.Credential(domainauth.Credential(raw).Token())
	if token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A concurrent Set wins over the mirrored value.
	if s.cred != "" {
		return false
	}
	s.cred = token
	return true
}

func (s *CredentialStore) warn(ctx context.Context, msg string, err error) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, "error", err)
	}
}

// MemoryMirror is an in-process CredentialMirror for tests and the "memory" backend.
type MemoryMirror struct {
	mu    sync.Mutex
	value string
	// SaveErr, LoadErr and RemoveErr inject failures.
	SaveErr   error
	LoadErr   error
	RemoveErr error
}

var _ ports.CredentialMirror = (*MemoryMirror)(nil)

func (m *MemoryMirror) Save(_ context.Context, sealed string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.value = sealed
	return nil
}

func (m *MemoryMirror) Load(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return "", m.LoadErr
	}
	return m.value, nil
}

func (m *MemoryMirror) Remove(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	m.value = ""
	return nil
}

// Value returns the raw stored value.
func (m *MemoryMirror) Value() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}
