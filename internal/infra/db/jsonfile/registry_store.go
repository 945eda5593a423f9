// File: internal/infra/db/jsonfile/registry_store.go
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"telegram-vpn-provisioning/internal/domain"
	"telegram-vpn-provisioning/internal/domain/model"
	"telegram-vpn-provisioning/internal/domain/ports/repository"
)

// ExpiryLayout is the persisted expiry format, always in UTC.
const ExpiryLayout = "2006-01-02 15:04"

// legacyExpiryLayout was written by older tooling and is still accepted on read.
const legacyExpiryLayout = "2006-01-02 15:04:05"

const lockRetryDelay = 25 * time.Millisecond

// entry is the persisted value shape. Activa is read for compatibility and never written.
type entry struct {
	Plan        string `json:"plan"`
	Vencimiento string `json:"vencimiento"`
	Owner       int64  `json:"owner,omitempty"`
	Activa      *bool  `json:"activa,omitempty"`
}

// RegistryStore keeps the client registry in a single JSON object on disk.
// The in-process mutex serializes goroutines; the sidecar flock serializes processes.
type RegistryStore struct {
	path   string
	mu     sync.Mutex
	lock   *flock.Flock
	logger *zerolog.Logger
}

var _ repository.RegistryStore = (*RegistryStore)(nil)

func NewRegistryStore(path string, logger *zerolog.Logger) (*RegistryStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty registry path", domain.ErrInvalidArgument)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	l := logger.With().Str("component", "RegistryStore").Str("path", path).Logger()
	return &RegistryStore{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: &l,
	}, nil
}

// Load returns the current snapshot. An absent file is initialized to an empty
// object. A corrupted file yields an empty registry and a warning.
func (s *RegistryStore) Load(ctx context.Context) (*repository.Registry, error) {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	reg, err := s.read()
	if errors.Is(err, errCorrupted) {
		s.logger.Warn().Err(err).Msg("registry file is corrupted; serving empty registry")
		return repository.NewRegistry(), nil
	}
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// Replace overwrites the whole file atomically.
func (s *RegistryStore) Replace(ctx context.Context, reg *repository.Registry) error {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return s.write(reg)
}

// Update is the single read-modify-write critical section. A corrupted file is
// never overwritten here; fn errors abort without writing.
func (s *RegistryStore) Update(ctx context.Context, fn func(reg *repository.Registry) error) error {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	reg, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(reg); err != nil {
		return err
	}
	return s.write(reg)
}

func (s *RegistryStore) acquire(ctx context.Context) (func(), error) {
	s.mu.Lock()
	ok, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !ok {
		s.mu.Unlock()
		if err == nil {
			err = errors.New("file lock not acquired")
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Error().Err(err).Msg("release file lock")
		}
		s.mu.Unlock()
	}, nil
}

var errCorrupted = fmt.Errorf("%w: corrupted registry file", domain.ErrStoreUnavailable)

func (s *RegistryStore) read() (*repository.Registry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		reg := repository.NewRegistry()
		if err := s.write(reg); err != nil {
			return nil, err
		}
		return reg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return repository.NewRegistry(), nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorrupted, err)
	}

	reg := repository.NewRegistry()
	for id, msg := range raw {
		rec, err := decodeEntry(id, msg)
		if err != nil {
			s.logger.Warn().Str("client_id", id).Err(err).Msg("unparsable registry entry")
			reg.Invalid[id] = msg
			continue
		}
		reg.Records[id] = rec
	}
	return reg, nil
}

func decodeEntry(id string, msg json.RawMessage) (*model.ClientRecord, error) {
	var e entry
	if err := json.Unmarshal(msg, &e); err != nil {
		return nil, err
	}
	if strings.TrimSpace(e.Plan) == "" {
		return nil, errors.New("missing plan")
	}
	exp, err := ParseExpiry(e.Vencimiento)
	if err != nil {
		return nil, err
	}
	return model.NewClientRecord(id, e.Plan, exp, e.Owner)
}

// ParseExpiry accepts both the current and the legacy seconds layout, as UTC.
func ParseExpiry(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{ExpiryLayout, legacyExpiryLayout} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("malformed expiry %q", s)
}

func (s *RegistryStore) write(reg *repository.Registry) error {
	out := make(map[string]json.RawMessage, len(reg.Records)+len(reg.Invalid))
	for id, msg := range reg.Invalid {
		out[id] = msg
	}
	ids := make([]string, 0, len(reg.Records))
	for id := range reg.Records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rec := reg.Records[id]
		b, err := json.Marshal(entry{
			Plan:        rec.Plan,
			Vencimiento: rec.ExpiresAt.UTC().Format(ExpiryLayout),
			Owner:       rec.Owner,
		})
		if err != nil {
			return err
		}
		out[id] = b
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}
