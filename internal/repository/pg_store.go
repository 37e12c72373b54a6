package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"career-compass/internal/domain"
)

// PgStore implementa el RemoteBackend sobre Postgres, acotado al id de cuenta.
// Llamarlo sin owner es un error de programacion y falla de inmediato.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func requireOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return domain.ErrNotAuthenticated
	}
	return nil
}

func progressTable(kind domain.ProgressKind) (string, error) {
	switch kind {
	case domain.KindModuleProgress:
		return "module_progress", nil
	case domain.KindInteractiveProgress:
		return "interactive_progress", nil
	default:
		return "", fmt.Errorf("progress kind %q: %w", kind, domain.ErrInvalidInput)
	}
}

func (r *PgStore) GetProgress(ctx context.Context, owner string, kind domain.ProgressKind, moduleID, sessionID string) (*domain.ProgressRecord, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	table, err := progressTable(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT module_id, session_id, payload, created_at, last_updated, completed
		FROM %s
		WHERE owner_id = $1 AND module_id = $2 AND session_id = $3
	`, table)

	rec := domain.ProgressRecord{Kind: kind}
	var payload []byte
	err = r.pool.QueryRow(ctx, query, owner, moduleID, sessionID).Scan(
		&rec.ModuleID,
		&rec.SessionID,
		&payload,
		&rec.CreatedAt,
		&rec.LastUpdated,
		&rec.Completed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Payload = payload
	return &rec, nil
}

func (r *PgStore) SaveProgress(ctx context.Context, owner string, rec domain.ProgressRecord) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	if err := validateRecord(rec); err != nil {
		return err
	}
	table, err := progressTable(rec.Kind)
	if err != nil {
		return err
	}
	rec = normalizeTimestamps(rec, time.Now().UTC())
	payload := []byte(rec.Payload)
	if payload == nil {
		payload = []byte{}
	}

	// Upsert idempotente: re-ejecutar una migracion no duplica filas.
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (owner_id, module_id, session_id, payload, created_at, last_updated, completed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_id, module_id, session_id)
		DO UPDATE SET
			payload = EXCLUDED.payload,
			last_updated = GREATEST(%[1]s.last_updated, EXCLUDED.last_updated),
			completed = EXCLUDED.completed
	`, table)
	_, err = r.pool.Exec(ctx, query,
		owner,
		rec.ModuleID,
		rec.SessionID,
		payload,
		rec.CreatedAt,
		rec.LastUpdated,
		rec.Completed,
	)
	return err
}

// MergeProgress es el upsert de migracion: no pisa una fila remota mas reciente.
func (r *PgStore) MergeProgress(ctx context.Context, owner string, rec domain.ProgressRecord) (bool, error) {
	if err := requireOwner(owner); err != nil {
		return false, err
	}
	if err := validateRecord(rec); err != nil {
		return false, err
	}
	table, err := progressTable(rec.Kind)
	if err != nil {
		return false, err
	}
	rec = normalizeTimestamps(rec, time.Now().UTC())
	payload := []byte(rec.Payload)
	if payload == nil {
		payload = []byte{}
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (owner_id, module_id, session_id, payload, created_at, last_updated, completed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_id, module_id, session_id)
		DO UPDATE SET
			payload = EXCLUDED.payload,
			last_updated = EXCLUDED.last_updated,
			completed = EXCLUDED.completed OR %[1]s.completed
		WHERE EXCLUDED.last_updated >= %[1]s.last_updated
	`, table)
	tag, err := r.pool.Exec(ctx, query,
		owner,
		rec.ModuleID,
		rec.SessionID,
		payload,
		rec.CreatedAt,
		rec.LastUpdated,
		rec.Completed,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgStore) ListProgress(ctx context.Context, owner string, kind domain.ProgressKind, moduleID string) ([]domain.ProgressRecord, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	table, err := progressTable(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT module_id, session_id, payload, created_at, last_updated, completed
		FROM %s
		WHERE owner_id = $1 AND ($2 = '' OR module_id = $2)
		ORDER BY last_updated DESC, created_at DESC
	`, table)

	rows, err := r.pool.Query(ctx, query, owner, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ProgressRecord{}
	for rows.Next() {
		rec := domain.ProgressRecord{Kind: kind}
		var payload []byte
		if err := rows.Scan(
			&rec.ModuleID,
			&rec.SessionID,
			&payload,
			&rec.CreatedAt,
			&rec.LastUpdated,
			&rec.Completed,
		); err != nil {
			return nil, err
		}
		rec.Payload = payload
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PgStore) GetInsights(ctx context.Context, owner string) (*domain.UserInsights, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	const query = `
		SELECT career_thinking, current_concerns, thought_flow, patterns, last_analyzed
		FROM user_insights
		WHERE owner_id = $1
	`
	var (
		ins                                   domain.UserInsights
		thinking, concerns, flow, patternsRaw []byte
	)
	err := r.pool.QueryRow(ctx, query, owner).Scan(&thinking, &concerns, &flow, &patternsRaw, &ins.LastAnalyzed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw  []byte
		dest *[]string
	}{
		{thinking, &ins.CareerThinking},
		{concerns, &ins.CurrentConcerns},
		{flow, &ins.ThoughtFlow},
		{patternsRaw, &ins.Patterns},
	} {
		if err := json.Unmarshal(f.raw, f.dest); err != nil {
			return nil, fmt.Errorf("decode insights: %w", err)
		}
	}
	return &ins, nil
}

func (r *PgStore) SaveInsights(ctx context.Context, owner string, insights domain.UserInsights) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	encoded := make([][]byte, 0, 4)
	for _, list := range [][]string{insights.CareerThinking, insights.CurrentConcerns, insights.ThoughtFlow, insights.Patterns} {
		if list == nil {
			list = []string{}
		}
		b, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("encode insights: %w", err)
		}
		encoded = append(encoded, b)
	}

	const query = `
		INSERT INTO user_insights (owner_id, career_thinking, current_concerns, thought_flow, patterns, last_analyzed)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id)
		DO UPDATE SET
			career_thinking = EXCLUDED.career_thinking,
			current_concerns = EXCLUDED.current_concerns,
			thought_flow = EXCLUDED.thought_flow,
			patterns = EXCLUDED.patterns,
			last_analyzed = EXCLUDED.last_analyzed
	`
	_, err := r.pool.Exec(ctx, query,
		owner,
		encoded[0],
		encoded[1],
		encoded[2],
		encoded[3],
		insights.LastAnalyzed.UTC(),
	)
	return err
}

func (r *PgStore) SaveSnapshot(ctx context.Context, snapshot domain.ValueSnapshot) error {
	if err := requireOwner(snapshot.OwnerID); err != nil {
		return err
	}
	if err := validateSnapshot(snapshot); err != nil {
		return err
	}
	axes, reasoning, err := encodeSnapshotMaps(snapshot)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO value_snapshots (id, owner_id, module_id, axes, reasoning, overall_confidence, created_at, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id)
		DO UPDATE SET
			axes = EXCLUDED.axes,
			reasoning = EXCLUDED.reasoning,
			overall_confidence = EXCLUDED.overall_confidence,
			last_updated = GREATEST(value_snapshots.last_updated, EXCLUDED.last_updated)
		WHERE value_snapshots.owner_id = EXCLUDED.owner_id
			AND EXCLUDED.last_updated >= value_snapshots.last_updated
	`
	_, err = r.pool.Exec(ctx, query,
		snapshot.ID,
		snapshot.OwnerID,
		nullableString(snapshot.ModuleID),
		axes,
		reasoning,
		snapshot.OverallConfidence,
		snapshot.CreatedAt.UTC(),
		snapshot.LastUpdated.UTC(),
	)
	return err
}

func (r *PgStore) ListSnapshots(ctx context.Context, owner string, includeHistory bool) (domain.SnapshotHistory, error) {
	if err := requireOwner(owner); err != nil {
		return domain.SnapshotHistory{}, err
	}
	// El orden lo resuelve Postgres; LIMIT NULL equivale a sin limite.
	const query = `
		SELECT id, owner_id, module_id, axes, reasoning, overall_confidence, created_at, last_updated
		FROM value_snapshots
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	var limit *int
	if !includeHistory {
		n := snapshotPageSize
		limit = &n
	}

	rows, err := r.pool.Query(ctx, query, owner, limit)
	if err != nil {
		return domain.SnapshotHistory{}, err
	}
	defer rows.Close()

	var ordered []domain.ValueSnapshot
	for rows.Next() {
		var (
			snap            domain.ValueSnapshot
			moduleID        *string
			axes, reasoning []byte
		)
		if err := rows.Scan(
			&snap.ID,
			&snap.OwnerID,
			&moduleID,
			&axes,
			&reasoning,
			&snap.OverallConfidence,
			&snap.CreatedAt,
			&snap.LastUpdated,
		); err != nil {
			return domain.SnapshotHistory{}, err
		}
		if moduleID != nil {
			snap.ModuleID = *moduleID
		}
		if err := decodeSnapshotMaps(&snap, axes, reasoning); err != nil {
			return domain.SnapshotHistory{}, err
		}
		ordered = append(ordered, snap)
	}
	if err := rows.Err(); err != nil {
		return domain.SnapshotHistory{}, err
	}
	return domain.NewSnapshotHistory(ordered, includeHistory), nil
}

func (r *PgStore) UpdateSnapshotAxes(ctx context.Context, owner, snapshotID string, axes map[domain.Axis]int, lastUpdated time.Time) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	body, err := json.Marshal(axes)
	if err != nil {
		return fmt.Errorf("encode axes: %w", err)
	}
	const query = `
		UPDATE value_snapshots
		SET axes = $1, last_updated = GREATEST(last_updated, $2)
		WHERE owner_id = $3 AND id = $4
	`
	tag, err := r.pool.Exec(ctx, query, body, lastUpdated.UTC(), owner, snapshotID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("snapshot %s: %w", snapshotID, domain.ErrNotFound)
	}
	return nil
}

func (r *PgStore) DeleteAllForOwner(ctx context.Context, owner string) (domain.ErasureCounts, error) {
	if err := requireOwner(owner); err != nil {
		return domain.ErasureCounts{}, err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.ErasureCounts{}, err
	}
	defer tx.Rollback(ctx)

	var counts domain.ErasureCounts
	steps := []struct {
		query string
		dest  *int64
	}{
		{`DELETE FROM module_progress WHERE owner_id = $1`, &counts.ModuleProgress},
		{`DELETE FROM interactive_progress WHERE owner_id = $1`, &counts.InteractiveProgress},
		{`DELETE FROM user_insights WHERE owner_id = $1`, &counts.Insights},
		{`DELETE FROM value_snapshots WHERE owner_id = $1`, &counts.ValueSnapshots},
	}
	for _, step := range steps {
		tag, err := tx.Exec(ctx, step.query, owner)
		if err != nil {
			return domain.ErasureCounts{}, fmt.Errorf("erase: %w", err)
		}
		*step.dest = tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.ErasureCounts{}, err
	}
	return counts, nil
}

func (r *PgStore) HasData(ctx context.Context, owner string) (bool, error) {
	if err := requireOwner(owner); err != nil {
		return false, err
	}
	const query = `
		SELECT EXISTS (SELECT 1 FROM module_progress WHERE owner_id = $1)
			OR EXISTS (SELECT 1 FROM interactive_progress WHERE owner_id = $1)
			OR EXISTS (SELECT 1 FROM user_insights WHERE owner_id = $1)
			OR EXISTS (SELECT 1 FROM value_snapshots WHERE owner_id = $1)
	`
	var has bool
	if err := r.pool.QueryRow(ctx, query, owner).Scan(&has); err != nil {
		return false, err
	}
	return has, nil
}
