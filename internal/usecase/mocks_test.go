// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-vpn-provisioning/internal/domain"
	"telegram-vpn-provisioning/internal/domain/model"
	"telegram-vpn-provisioning/internal/domain/ports/adapter"
	"telegram-vpn-provisioning/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func testCatalog() *model.PlanCatalog {
	c, err := model.NewPlanCatalog(
		model.PlanDefinition{Key: "free", Name: "Free (5 horas)", Hours: 5},
		model.PlanDefinition{Key: "d15", Name: "15 días", Days: 15},
		model.PlanDefinition{Key: "d30", Name: "30 días", Days: 30},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// fixedClock is a settable clock shared by the use cases under test.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{t: time.Date(2025, 10, 16, 9, 5, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memRegistryStore is an in-memory RegistryStore with a single critical section.
type memRegistryStore struct {
	mu        sync.Mutex
	records   map[string]model.ClientRecord
	updateErr error
	loadErr   error
	updates   int
}

var _ repository.RegistryStore = (*memRegistryStore)(nil)

func newMemRegistryStore() *memRegistryStore {
	return &memRegistryStore{records: map[string]model.ClientRecord{}}
}

func (m *memRegistryStore) snapshot() *repository.Registry {
	reg := repository.NewRegistry()
	for id, rec := range m.records {
		cp := rec
		reg.Records[id] = &cp
	}
	return reg
}

func (m *memRegistryStore) Load(ctx context.Context) (*repository.Registry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.snapshot(), nil
}

func (m *memRegistryStore) Replace(ctx context.Context, reg *repository.Registry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = map[string]model.ClientRecord{}
	for id, rec := range reg.Records {
		m.records[id] = *rec
	}
	return nil
}

func (m *memRegistryStore) Update(ctx context.Context, fn func(reg *repository.Registry) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg := m.snapshot()
	if err := fn(reg); err != nil {
		return err
	}
	if m.updateErr != nil {
		return m.updateErr
	}
	m.records = map[string]model.ClientRecord{}
	for id, rec := range reg.Records {
		m.records[id] = *rec
	}
	m.updates++
	return nil
}

func (m *memRegistryStore) get(id string) (model.ClientRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	return rec, ok
}

func (m *memRegistryStore) put(rec model.ClientRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
}

// fakeProvisioner writes artifacts into dir, or fails as configured.
type fakeProvisioner struct {
	mu        sync.Mutex
	dir       string
	err       error
	skipConf  bool // exit 0 without writing the conf file
	calls     int
	provision func(clientID string) // optional hook
}

var _ adapter.Provisioner = (*fakeProvisioner)(nil)

func (p *fakeProvisioner) paths(id string) (string, string) {
	return filepath.Join(p.dir, id+".conf"), filepath.Join(p.dir, id+".png")
}

func (p *fakeProvisioner) Provision(ctx context.Context, clientID string) (*model.Artifacts, error) {
	p.mu.Lock()
	p.calls++
	hook := p.provision
	p.mu.Unlock()
	if hook != nil {
		hook(clientID)
	}
	if p.err != nil {
		return nil, p.err
	}
	conf, png := p.paths(clientID)
	var created []string
	for _, path := range []string{conf, png} {
		if _, err := os.Stat(path); err != nil {
			created = append(created, path)
		}
	}
	if !p.skipConf {
		if err := os.WriteFile(conf, []byte("[Interface]\n"), 0o600); err != nil {
			return nil, err
		}
		if err := os.WriteFile(png, []byte("png"), 0o600); err != nil {
			return nil, err
		}
	}
	art, err := p.Locate(ctx, clientID)
	if err != nil {
		return nil, err
	}
	art.Created = created
	return art, nil
}

func (p *fakeProvisioner) Discard(ctx context.Context, art *model.Artifacts) error {
	for _, path := range art.Created {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (p *fakeProvisioner) Locate(ctx context.Context, clientID string) (*model.Artifacts, error) {
	conf, png := p.paths(clientID)
	if _, err := os.Stat(conf); err != nil {
		return nil, &domain.ArtifactError{Path: conf}
	}
	return &model.Artifacts{ConfPath: conf, QRPath: png}, nil
}

func (p *fakeProvisioner) Remove(ctx context.Context, clientID string) (bool, error) {
	removed := false
	conf, png := p.paths(clientID)
	for _, path := range []string{conf, png} {
		if err := os.Remove(path); err == nil {
			removed = true
		} else if !errors.Is(err, os.ErrNotExist) {
			return removed, err
		}
	}
	return removed, nil
}

// sentMessage records one outbound notification.
type sentMessage struct {
	Kind      string // text | document | photo | choice
	Recipient int64
	Text      string
	File      adapter.FileRef
	Options   []adapter.Choice
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

var _ adapter.Notifier = (*fakeNotifier)(nil)

func (n *fakeNotifier) record(m sentMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, m)
	return n.err
}

func (n *fakeNotifier) Send(ctx context.Context, recipient int64, text string) error {
	return n.record(sentMessage{Kind: "text", Recipient: recipient, Text: text})
}

func (n *fakeNotifier) SendDocument(ctx context.Context, recipient int64, file adapter.FileRef, caption string) error {
	return n.record(sentMessage{Kind: "document", Recipient: recipient, Text: caption, File: file})
}

func (n *fakeNotifier) SendPhoto(ctx context.Context, recipient int64, file adapter.FileRef, caption string) error {
	return n.record(sentMessage{Kind: "photo", Recipient: recipient, Text: caption, File: file})
}

func (n *fakeNotifier) PresentChoice(ctx context.Context, recipient int64, text string, options []adapter.Choice) error {
	return n.record(sentMessage{Kind: "choice", Recipient: recipient, Text: text, Options: options})
}

func (n *fakeNotifier) to(recipient int64) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, m := range n.sent {
		if m.Recipient == recipient {
			out = append(out, m)
		}
	}
	return out
}

func (n *fakeNotifier) reset() {
	n.mu.Lock()
	n.sent = nil
	n.mu.Unlock()
}

func (m sentMessage) String() string {
	return fmt.Sprintf("%s->%d %q", m.Kind, m.Recipient, m.Text)
}
