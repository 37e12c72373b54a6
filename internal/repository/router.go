package repository

import (
	"context"
	"time"

	"career-compass/internal/domain"
)

// StorageRouter es el unico punto de entrada al almacenamiento.
// Solo elige backend segun la identidad recibida en cada llamada; no tiene reglas de negocio.
type StorageRouter struct {
	local       Backend
	remote      Backend
	deviceToken string
}

// NewStorageRouter recibe el backend local, el remoto (puede ser nil) y el token del dispositivo.
func NewStorageRouter(local Backend, remote Backend, deviceToken string) *StorageRouter {
	return &StorageRouter{
		local:       local,
		remote:      remote,
		deviceToken: deviceToken,
	}
}

func (r *StorageRouter) DeviceToken() string {
	return r.deviceToken
}

// DeviceIdentity es la identidad anonima de este dispositivo.
func (r *StorageRouter) DeviceIdentity() domain.Identity {
	return domain.AnonymousIdentity(r.deviceToken)
}

func (r *StorageRouter) resolve(id domain.Identity) (Backend, string, error) {
	if id.Kind == domain.IdentityAuthenticated {
		if id.Subject == "" {
			return nil, "", domain.ErrNotAuthenticated
		}
		if r.remote == nil {
			return nil, "", domain.ErrRemoteUnavailable
		}
		return r.remote, id.Subject, nil
	}
	owner := id.Subject
	if owner == "" {
		owner = r.deviceToken
	}
	return r.local, owner, nil
}

func (r *StorageRouter) GetProgress(ctx context.Context, id domain.Identity, kind domain.ProgressKind, moduleID, sessionID string) (*domain.ProgressRecord, error) {
	b, owner, err := r.resolve(id)
	if err != nil {
		return nil, err
	}
	return b.GetProgress(ctx, owner, kind, moduleID, sessionID)
}

func (r *StorageRouter) SaveProgress(ctx context.Context, id domain.Identity, rec domain.ProgressRecord) error {
	b, owner, err := r.resolve(id)
	if err != nil {
		return err
	}
	return b.SaveProgress(ctx, owner, rec)
}

func (r *StorageRouter) ListProgress(ctx context.Context, id domain.Identity, kind domain.ProgressKind, moduleID string) ([]domain.ProgressRecord, error) {
	b, owner, err := r.resolve(id)
	if err != nil {
		return nil, err
	}
	return b.ListProgress(ctx, owner, kind, moduleID)
}

func (r *StorageRouter) GetModuleProgress(ctx context.Context, id domain.Identity, moduleID, sessionID string) (*domain.ModuleProgress, error) {
	rec, err := r.GetProgress(ctx, id, domain.KindModuleProgress, moduleID, sessionID)
	if err != nil || rec == nil {
		return nil, err
	}
	p, err := domain.ModuleProgressFromRecord(*rec)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *StorageRouter) SaveModuleProgress(ctx context.Context, id domain.Identity, p domain.ModuleProgress) error {
	rec, err := p.Record()
	if err != nil {
		return err
	}
	return r.SaveProgress(ctx, id, rec)
}

func (r *StorageRouter) ListModuleProgress(ctx context.Context, id domain.Identity, moduleID string) ([]domain.ModuleProgress, error) {
	recs, err := r.ListProgress(ctx, id, domain.KindModuleProgress, moduleID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ModuleProgress, 0, len(recs))
	for _, rec := range recs {
		p, err := domain.ModuleProgressFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *StorageRouter) GetInteractiveProgress(ctx context.Context, id domain.Identity, moduleID, sessionID string) (*domain.InteractiveProgress, error) {
	rec, err := r.GetProgress(ctx, id, domain.KindInteractiveProgress, moduleID, sessionID)
	if err != nil || rec == nil {
		return nil, err
	}
	p, err := domain.InteractiveProgressFromRecord(*rec)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *StorageRouter) SaveInteractiveProgress(ctx context.Context, id domain.Identity, p domain.InteractiveProgress) error {
	return r.SaveProgress(ctx, id, p.Record())
}

func (r *StorageRouter) ListInteractiveProgress(ctx context.Context, id domain.Identity, moduleID string) ([]domain.InteractiveProgress, error) {
	recs, err := r.ListProgress(ctx, id, domain.KindInteractiveProgress, moduleID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.InteractiveProgress, 0, len(recs))
	for _, rec := range recs {
		p, err := domain.InteractiveProgressFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *StorageRouter) GetInsights(ctx context.Context, id domain.Identity) (*domain.UserInsights, error) {
	b, owner, err := r.resolve(id)
	if err != nil {
		return nil, err
	}
	return b.GetInsights(ctx, owner)
}

func (r *StorageRouter) SaveInsights(ctx context.Context, id domain.Identity, insights domain.UserInsights) error {
	b, owner, err := r.resolve(id)
	if err != nil {
		return err
	}
	return b.SaveInsights(ctx, owner, insights)
}

// SaveSnapshot etiqueta el snapshot con el owner resuelto antes de delegar y lo devuelve etiquetado.
func (r *StorageRouter) SaveSnapshot(ctx context.Context, id domain.Identity, snapshot domain.ValueSnapshot) (domain.ValueSnapshot, error) {
	b, owner, err := r.resolve(id)
	if err != nil {
		return domain.ValueSnapshot{}, err
	}
	snapshot.OwnerID = owner
	if err := b.SaveSnapshot(ctx, snapshot); err != nil {
		return domain.ValueSnapshot{}, err
	}
	return snapshot, nil
}

func (r *StorageRouter) ListSnapshots(ctx context.Context, id domain.Identity, includeHistory bool) (domain.SnapshotHistory, error) {
	b, owner, err := r.resolve(id)
	if err != nil {
		return domain.SnapshotHistory{}, err
	}
	return b.ListSnapshots(ctx, owner, includeHistory)
}

func (r *StorageRouter) UpdateSnapshotAxes(ctx context.Context, id domain.Identity, snapshotID string, axes map[domain.Axis]int, lastUpdated time.Time) error {
	b, owner, err := r.resolve(id)
	if err != nil {
		return err
	}
	return b.UpdateSnapshotAxes(ctx, owner, snapshotID, axes, lastUpdated)
}

func (r *StorageRouter) EraseAll(ctx context.Context, id domain.Identity) (domain.ErasureCounts, error) {
	b, owner, err := r.resolve(id)
	if err != nil {
		return domain.ErasureCounts{}, err
	}
	return b.DeleteAllForOwner(ctx, owner)
}
