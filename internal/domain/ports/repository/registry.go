package repository

import (
	"context"
	"encoding/json"

	"telegram-vpn-provisioning/internal/domain/model"
)

// Registry is one consistent snapshot of the registry store.
// Invalid holds entries that could not be parsed; they are reported, never
// treated as valid records, and written back verbatim until removed.
type Registry struct {
	Records map[string]*model.ClientRecord
	Invalid map[string]json.RawMessage
}

func NewRegistry() *Registry {
	return &Registry{
		Records: map[string]*model.ClientRecord{},
		Invalid: map[string]json.RawMessage{},
	}
}

// Remove drops id from both the valid and invalid sets.
func (r *Registry) Remove(id string) bool {
	_, okValid := r.Records[id]
	_, okInvalid := r.Invalid[id]
	delete(r.Records, id)
	delete(r.Invalid, id)
	return okValid || okInvalid
}

// Put stores rec, superseding any invalid entry under the same id.
func (r *Registry) Put(rec *model.ClientRecord) {
	delete(r.Invalid, rec.ID)
	r.Records[rec.ID] = rec
}

// RegistryStore is the durable client registry. Replace is a full overwrite;
// read-modify-write sequences go through Update, the single critical section.
type RegistryStore interface {
	Load(ctx context.Context) (*Registry, error)
	Replace(ctx context.Context, reg *Registry) error
	// Update loads, applies fn and replaces atomically while holding the store lock.
	// When fn returns an error nothing is written.
	Update(ctx context.Context, fn func(reg *Registry) error) error
}
