// File: internal/usecase/lifecycle_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"telegram-vpn-provisioning/internal/domain"
	"telegram-vpn-provisioning/internal/domain/model"
	"telegram-vpn-provisioning/internal/domain/ports/adapter"
	"telegram-vpn-provisioning/internal/domain/ports/repository"
	"telegram-vpn-provisioning/internal/infra/logging"
	"telegram-vpn-provisioning/internal/infra/metrics"
)

// Compile-time check
var _ LifecycleUseCase = (*lifecycleUC)(nil)

// ClientStats is a point-in-time classification of the whole registry.
type ClientStats struct {
	Active  int
	Expired int
	Invalid int // entries that could not be parsed
}

// LifecycleUseCase owns the create/renew/delete lifecycle of VPN clients.
type LifecycleUseCase interface {
	Create(ctx context.Context, clientName, plan string, owner int64) (*model.ClientRecord, *model.Artifacts, error)
	Renew(ctx context.Context, clientID, plan string) (*model.ClientRecord, error)
	Delete(ctx context.Context, clientID string) (bool, error)
	Stats(ctx context.Context) (ClientStats, error)

	Get(ctx context.Context, clientID string) (*model.ClientRecord, error)
	List(ctx context.Context) ([]*model.ClientRecord, error)
	Expiring(ctx context.Context, window time.Duration) ([]*model.ClientRecord, error)
	OwnedBy(ctx context.Context, owner int64) ([]*model.ClientRecord, error)
	Artifacts(ctx context.Context, clientID string) (*model.Artifacts, error)
	Plans() []model.PlanDefinition
}

type lifecycleUC struct {
	store       repository.RegistryStore
	provisioner adapter.Provisioner
	catalog     *model.PlanCatalog
	locks       *keyedMutex
	now         func() time.Time
	log         *zerolog.Logger
}

func NewLifecycleUseCase(store repository.RegistryStore, provisioner adapter.Provisioner, catalog *model.PlanCatalog, logger *zerolog.Logger) *lifecycleUC {
	l := logger.With().Str("component", "LifecycleUC").Logger()
	return &lifecycleUC{
		store:       store,
		provisioner: provisioner,
		catalog:     catalog,
		locks:       newKeyedMutex(),
		now:         time.Now,
		log:         &l,
	}
}

func (uc *lifecycleUC) Plans() []model.PlanDefinition { return uc.catalog.List() }

// Create provisions credentials for a new client and records it. The registry is
// only written after the provisioner produced a usable conf file, and the
// provisioner call runs outside the store critical section.
func (uc *lifecycleUC) Create(ctx context.Context, clientName, plan string, owner int64) (*model.ClientRecord, *model.Artifacts, error) {
	defer logging.TraceDuration(uc.log, "LifecycleUC.Create")()

	clientID := model.SanitizeClientID(clientName)
	log := logging.With(logging.WithClientID(ctx, clientID), uc.log)

	now := uc.now()
	expiresAt, err := uc.catalog.ComputeExpiry(plan, now)
	if err != nil {
		metrics.IncProvisioning("invalid_plan")
		return nil, nil, err
	}
	rec, err := model.NewClientRecord(clientID, plan, expiresAt, owner)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	unlock := uc.locks.Lock(clientID)
	defer unlock()

	reg, err := uc.strictSnapshot(ctx)
	if err != nil {
		metrics.IncProvisioning("store_error")
		log.Error().Err(err).Msg("registry not writable; provisioning skipped")
		return nil, nil, err
	}
	if existing, ok := reg.Records[clientID]; ok && existing.IsActive(now) {
		metrics.IncProvisioning("exists")
		return nil, nil, fmt.Errorf("%w: %s until %s", domain.ErrClientExists, clientID, existing.ExpiresAt.Format(time.RFC3339))
	}

	start := time.Now()
	art, err := uc.provisioner.Provision(ctx, clientID)
	metrics.ObserveProvisioning(time.Since(start))
	if err != nil {
		if errors.Is(err, domain.ErrArtifactMissing) {
			metrics.IncProvisioning("artifact_missing")
		} else {
			metrics.IncProvisioning("failed")
		}
		log.Error().Err(err).Msg("provisioning failed; registry untouched")
		return nil, nil, err
	}

	if err := uc.store.Update(ctx, func(reg *repository.Registry) error {
		reg.Put(rec)
		return nil
	}); err != nil {
		metrics.IncProvisioning("store_error")
		log.Error().Err(err).Msg("registry write failed; removing provisioned artifacts")
		if rmErr := uc.provisioner.Discard(ctx, art); rmErr != nil {
			log.Error().Err(rmErr).Msg("artifact cleanup failed")
		}
		return nil, nil, err
	}

	metrics.IncProvisioning("success")
	log.Info().Str("plan", plan).Time("expires_at", rec.ExpiresAt).Int64("owner", owner).Msg("client created")
	return rec, art, nil
}

// errSnapshotOnly aborts an Update once the snapshot has been inspected.
var errSnapshotOnly = errors.New("snapshot only")

// strictSnapshot reads the registry through the write path: a store that could
// not accept the later write (a corrupted file) fails here instead of serving an
// empty view.
func (uc *lifecycleUC) strictSnapshot(ctx context.Context) (*repository.Registry, error) {
	var snap *repository.Registry
	err := uc.store.Update(ctx, func(reg *repository.Registry) error {
		snap = reg
		return errSnapshotOnly
	})
	if errors.Is(err, errSnapshotOnly) {
		return snap, nil
	}
	if err == nil {
		return nil, fmt.Errorf("%w: registry snapshot not taken", domain.ErrStoreUnavailable)
	}
	return nil, err
}

// Renew extends a client from the later of its stored expiry and now. An empty
// plan reuses the stored plan. Credential files are never touched.
func (uc *lifecycleUC) Renew(ctx context.Context, clientID, plan string) (*model.ClientRecord, error) {
	defer logging.TraceDuration(uc.log, "LifecycleUC.Renew")()

	unlock := uc.locks.Lock(clientID)
	defer unlock()

	var renewed model.ClientRecord
	err := uc.store.Update(ctx, func(reg *repository.Registry) error {
		rec, ok := reg.Records[clientID]
		if !ok {
			return fmt.Errorf("%w: client %q", domain.ErrNotFound, clientID)
		}
		name := plan
		if name == "" {
			name = rec.Plan
		}
		now := uc.now()
		base := rec.ExpiresAt
		if now.After(base) {
			base = now
		}
		expiresAt, err := uc.catalog.ComputeExpiry(name, base)
		if err != nil {
			return err
		}
		next, err := model.NewClientRecord(rec.ID, name, expiresAt, rec.Owner)
		if err != nil {
			return err
		}
		reg.Put(next)
		renewed = *next
		return nil
	})
	if err != nil {
		metrics.IncRenewal(renewResult(err))
		return nil, err
	}

	metrics.IncRenewal("success")
	uc.log.Info().Str("client_id", clientID).Str("plan", renewed.Plan).Time("expires_at", renewed.ExpiresAt).Msg("client renewed")
	return &renewed, nil
}

func renewResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidPlan):
		return "invalid_plan"
	default:
		return "store_error"
	}
}

// Delete removes the record and both artifacts. It reports whether anything
// was actually removed; deleting twice is not an error.
func (uc *lifecycleUC) Delete(ctx context.Context, clientID string) (bool, error) {
	defer logging.TraceDuration(uc.log, "LifecycleUC.Delete")()

	unlock := uc.locks.Lock(clientID)
	defer unlock()

	var recordRemoved bool
	if err := uc.store.Update(ctx, func(reg *repository.Registry) error {
		recordRemoved = reg.Remove(clientID)
		return nil
	}); err != nil {
		return false, err
	}

	// Unsafe ids can only name legacy records; no artifact was ever written for them.
	var filesRemoved bool
	var err error
	if clientID == model.SanitizeClientID(clientID) {
		filesRemoved, err = uc.provisioner.Remove(ctx, clientID)
	}
	if err != nil {
		uc.log.Error().Str("client_id", clientID).Err(err).Msg("artifact removal failed")
		return recordRemoved, err
	}

	removed := recordRemoved || filesRemoved
	if removed {
		metrics.IncDeletion()
	}
	uc.log.Info().Str("client_id", clientID).Bool("record", recordRemoved).Bool("files", filesRemoved).Msg("client deleted")
	return removed, nil
}

// Stats classifies every record against one consistent snapshot.
func (uc *lifecycleUC) Stats(ctx context.Context) (ClientStats, error) {
	reg, err := uc.store.Load(ctx)
	if err != nil {
		return ClientStats{}, err
	}
	now := uc.now()
	st := ClientStats{Invalid: len(reg.Invalid)}
	for _, rec := range reg.Records {
		if rec.IsActive(now) {
			st.Active++
		} else {
			st.Expired++
		}
	}
	metrics.SetRegistryClients(st.Active, st.Expired, st.Invalid)
	return st, nil
}

func (uc *lifecycleUC) Get(ctx context.Context, clientID string) (*model.ClientRecord, error) {
	reg, err := uc.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := reg.Records[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: client %q", domain.ErrNotFound, clientID)
	}
	return rec, nil
}

// List returns every valid record ordered by client id.
func (uc *lifecycleUC) List(ctx context.Context) ([]*model.ClientRecord, error) {
	return uc.filter(ctx, func(*model.ClientRecord) bool { return true }, byID)
}

// Expiring returns records with 0 <= remaining <= window, soonest first.
func (uc *lifecycleUC) Expiring(ctx context.Context, window time.Duration) ([]*model.ClientRecord, error) {
	now := uc.now()
	return uc.filter(ctx, func(r *model.ClientRecord) bool {
		return r.Status(now, window) == model.ExpiryExpiringSoon
	}, byExpiry)
}

func (uc *lifecycleUC) OwnedBy(ctx context.Context, owner int64) ([]*model.ClientRecord, error) {
	if owner == 0 {
		return nil, nil
	}
	return uc.filter(ctx, func(r *model.ClientRecord) bool { return r.Owner == owner }, byExpiry)
}

// Artifacts locates the credential files of a client.
func (uc *lifecycleUC) Artifacts(ctx context.Context, clientID string) (*model.Artifacts, error) {
	return uc.provisioner.Locate(ctx, clientID)
}

func byID(a, b *model.ClientRecord) bool { return a.ID < b.ID }

func byExpiry(a, b *model.ClientRecord) bool {
	if a.ExpiresAt.Equal(b.ExpiresAt) {
		return a.ID < b.ID
	}
	return a.ExpiresAt.Before(b.ExpiresAt)
}

func (uc *lifecycleUC) filter(ctx context.Context, keep func(*model.ClientRecord) bool, less func(a, b *model.ClientRecord) bool) ([]*model.ClientRecord, error) {
	reg, err := uc.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.ClientRecord, 0, len(reg.Records))
	for _, rec := range reg.Records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}
