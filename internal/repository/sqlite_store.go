package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"career-compass/internal/domain"
)

// SQLiteStore implementa LocalBackend sobre un archivo SQLite por dispositivo.
// Un store recien creado se lee como vacio: nunca falla por "todavia no hay datos".
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre o crea la base local en dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Un unico escritor por dispositivo.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS progress (
		kind         TEXT    NOT NULL,
		owner_id     TEXT    NOT NULL,
		module_id    TEXT    NOT NULL,
		session_id   TEXT    NOT NULL,
		payload      BLOB    NOT NULL,
		created_at   INTEGER NOT NULL,
		last_updated INTEGER NOT NULL,
		completed    INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (kind, owner_id, module_id, session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_progress_owner_updated ON progress(owner_id, kind, last_updated DESC);

	CREATE TABLE IF NOT EXISTS insights (
		owner_id TEXT PRIMARY KEY,
		body     TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS value_snapshots (
		id                 TEXT PRIMARY KEY,
		owner_id           TEXT    NOT NULL,
		module_id          TEXT,
		axes               TEXT    NOT NULL,
		reasoning          TEXT    NOT NULL,
		overall_confidence INTEGER NOT NULL,
		created_at         INTEGER NOT NULL,
		last_updated       INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_owner_created ON value_snapshots(owner_id, created_at DESC, id DESC);

	CREATE TABLE IF NOT EXISTS device_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// scope usa el token del dispositivo cuando el llamador no indica owner.
func (s *SQLiteStore) scope(ctx context.Context, owner string) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner != "" {
		return owner, nil
	}
	return s.DeviceToken(ctx)
}

func (s *SQLiteStore) GetProgress(ctx context.Context, owner string, kind domain.ProgressKind, moduleID, sessionID string) (*domain.ProgressRecord, error) {
	owner, err := s.scope(ctx, owner)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT kind, module_id, session_id, payload, created_at, last_updated, completed
		 FROM progress
		 WHERE kind = ? AND owner_id = ? AND module_id = ? AND session_id = ?`,
		string(kind), owner, moduleID, sessionID)

	rec, err := scanSQLiteProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return &rec, nil
}

func (s *SQLiteStore) SaveProgress(ctx context.Context, owner string, rec domain.ProgressRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	owner, err := s.scope(ctx, owner)
	if err != nil {
		return err
	}
	rec = normalizeTimestamps(rec, time.Now().UTC())
	payload := []byte(rec.Payload)
	if payload == nil {
		payload = []byte{}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO progress (kind, owner_id, module_id, session_id, payload, created_at, last_updated, completed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (kind, owner_id, module_id, session_id) DO UPDATE SET
			payload = excluded.payload,
			last_updated = MAX(progress.last_updated, excluded.last_updated),
			completed = excluded.completed`,
		string(rec.Kind), owner, rec.ModuleID, rec.SessionID, payload,
		rec.CreatedAt.UnixNano(), rec.LastUpdated.UnixNano(), rec.Completed)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MergeProgress(ctx context.Context, owner string, rec domain.ProgressRecord) (bool, error) {
	if err := validateRecord(rec); err != nil {
		return false, err
	}
	owner, err := s.scope(ctx, owner)
	if err != nil {
		return false, err
	}
	rec = normalizeTimestamps(rec, time.Now().UTC())
	payload := []byte(rec.Payload)
	if payload == nil {
		payload = []byte{}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO progress (kind, owner_id, module_id, session_id, payload, created_at, last_updated, completed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (kind, owner_id, module_id, session_id) DO UPDATE SET
			payload = excluded.payload,
			last_updated = excluded.last_updated,
			completed = excluded.completed OR progress.completed
		 WHERE excluded.last_updated >= progress.last_updated`,
		string(rec.Kind), owner, rec.ModuleID, rec.SessionID, payload,
		rec.CreatedAt.UnixNano(), rec.LastUpdated.UnixNano(), rec.Completed)
	if err != nil {
		return false, fmt.Errorf("merge progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("merge progress: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListProgress(ctx context.Context, owner string, kind domain.ProgressKind, moduleID string) ([]domain.ProgressRecord, error) {
	owner, err := s.scope(ctx, owner)
	if err != nil {
		return nil, err
	}
	query := `SELECT kind, module_id, session_id, payload, created_at, last_updated, completed
		FROM progress
		WHERE kind = ? AND owner_id = ?`
	args := []any{string(kind), owner}
	if moduleID != "" {
		query += ` AND module_id = ?`
		args = append(args, moduleID)
	}
	query += ` ORDER BY last_updated DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	out := []domain.ProgressRecord{}
	for rows.Next() {
		rec, err := scanSQLiteProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetInsights(ctx context.Context, owner string) (*domain.UserInsights, error) {
	owner, err := s.scope(ctx, owner)
	if err != nil {
		return nil, err
	}
	var body string
	err = s.db.QueryRowContext(ctx, `SELECT body FROM insights WHERE owner_id = ?`, owner).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get insights: %w", err)
	}
	var ins domain.UserInsights
	if err := json.Unmarshal([]byte(body), &ins); err != nil {
		return nil, fmt.Errorf("decode insights: %w", err)
	}
	return &ins, nil
}

func (s *SQLiteStore) SaveInsights(ctx context.Context, owner string, insights domain.UserInsights) error {
	owner, err := s.scope(ctx, owner)
	if err != nil {
		return err
	}
	body, err := json.Marshal(insights)
	if err != nil {
		return fmt.Errorf("encode insights: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO insights (owner_id, body) VALUES (?, ?)
		 ON CONFLICT (owner_id) DO UPDATE SET body = excluded.body`,
		owner, string(body))
	if err != nil {
		return fmt.Errorf("upsert insights: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snapshot domain.ValueSnapshot) error {
	if err := validateSnapshot(snapshot); err != nil {
		return err
	}
	owner, err := s.scope(ctx, snapshot.OwnerID)
	if err != nil {
		return err
	}
	axes, reasoning, err := encodeSnapshotMaps(snapshot)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO value_snapshots (id, owner_id, module_id, axes, reasoning, overall_confidence, created_at, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			axes = excluded.axes,
			reasoning = excluded.reasoning,
			overall_confidence = excluded.overall_confidence,
			last_updated = MAX(value_snapshots.last_updated, excluded.last_updated)
		 WHERE value_snapshots.owner_id = excluded.owner_id
			AND excluded.last_updated >= value_snapshots.last_updated`,
		snapshot.ID, owner, nullableString(snapshot.ModuleID), string(axes), string(reasoning),
		snapshot.OverallConfidence, snapshot.CreatedAt.UTC().UnixNano(), snapshot.LastUpdated.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, owner string, includeHistory bool) (domain.SnapshotHistory, error) {
	owner, err := s.scope(ctx, owner)
	if err != nil {
		return domain.SnapshotHistory{}, err
	}
	limit := -1
	if !includeHistory {
		limit = snapshotPageSize
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, module_id, axes, reasoning, overall_confidence, created_at, last_updated
		 FROM value_snapshots
		 WHERE owner_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, owner, limit)
	if err != nil {
		return domain.SnapshotHistory{}, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var ordered []domain.ValueSnapshot
	for rows.Next() {
		var (
			snap                 domain.ValueSnapshot
			moduleID             sql.NullString
			axes, reasoning      string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&snap.ID, &snap.OwnerID, &moduleID, &axes, &reasoning, &snap.OverallConfidence, &createdAt, &updatedAt); err != nil {
			return domain.SnapshotHistory{}, err
		}
		if moduleID.Valid {
			snap.ModuleID = moduleID.String
		}
		if err := decodeSnapshotMaps(&snap, []byte(axes), []byte(reasoning)); err != nil {
			return domain.SnapshotHistory{}, err
		}
		snap.CreatedAt = time.Unix(0, createdAt).UTC()
		snap.LastUpdated = time.Unix(0, updatedAt).UTC()
		ordered = append(ordered, snap)
	}
	if err := rows.Err(); err != nil {
		return domain.SnapshotHistory{}, err
	}
	return domain.NewSnapshotHistory(ordered, includeHistory), nil
}

func (s *SQLiteStore) UpdateSnapshotAxes(ctx context.Context, owner, snapshotID string, axes map[domain.Axis]int, lastUpdated time.Time) error {
	owner, err := s.scope(ctx, owner)
	if err != nil {
		return err
	}
	body, err := json.Marshal(axes)
	if err != nil {
		return fmt.Errorf("encode axes: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE value_snapshots
		 SET axes = ?, last_updated = MAX(last_updated, ?)
		 WHERE owner_id = ? AND id = ?`,
		string(body), lastUpdated.UTC().UnixNano(), owner, snapshotID)
	if err != nil {
		return fmt.Errorf("update snapshot axes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("snapshot %s: %w", snapshotID, domain.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteAllForOwner(ctx context.Context, owner string) (domain.ErasureCounts, error) {
	owner, err := s.scope(ctx, owner)
	if err != nil {
		return domain.ErasureCounts{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ErasureCounts{}, err
	}
	defer tx.Rollback()

	var counts domain.ErasureCounts
	steps := []struct {
		query string
		args  []any
		dest  *int64
	}{
		{`DELETE FROM progress WHERE owner_id = ? AND kind = ?`, []any{owner, string(domain.KindModuleProgress)}, &counts.ModuleProgress},
		{`DELETE FROM progress WHERE owner_id = ? AND kind = ?`, []any{owner, string(domain.KindInteractiveProgress)}, &counts.InteractiveProgress},
		{`DELETE FROM insights WHERE owner_id = ?`, []any{owner}, &counts.Insights},
		{`DELETE FROM value_snapshots WHERE owner_id = ?`, []any{owner}, &counts.ValueSnapshots},
	}
	for _, step := range steps {
		res, err := tx.ExecContext(ctx, step.query, step.args...)
		if err != nil {
			return domain.ErasureCounts{}, fmt.Errorf("erase: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return domain.ErasureCounts{}, err
		}
		*step.dest = n
	}
	if err := tx.Commit(); err != nil {
		return domain.ErasureCounts{}, err
	}
	return counts, nil
}

func (s *SQLiteStore) HasData(ctx context.Context, owner string) (bool, error) {
	owner, err := s.scope(ctx, owner)
	if err != nil {
		return false, err
	}
	var has bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM progress WHERE owner_id = ?)
		     OR EXISTS (SELECT 1 FROM insights WHERE owner_id = ?)
		     OR EXISTS (SELECT 1 FROM value_snapshots WHERE owner_id = ?)`,
		owner, owner, owner).Scan(&has)
	if err != nil {
		return false, fmt.Errorf("has data: %w", err)
	}
	return has, nil
}

// DeviceToken devuelve el token anonimo del dispositivo, generandolo la primera vez.
func (s *SQLiteStore) DeviceToken(ctx context.Context) (string, error) {
	token, err := s.meta(ctx, metaDeviceToken)
	if err != nil {
		return "", err
	}
	if token != "" {
		return token, nil
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO device_meta (key, value) VALUES (?, ?)`,
		metaDeviceToken, uuid.NewString()); err != nil {
		return "", fmt.Errorf("store device token: %w", err)
	}
	return s.meta(ctx, metaDeviceToken)
}

func (s *SQLiteStore) MigrationState(ctx context.Context) (domain.MigrationState, error) {
	v, err := s.meta(ctx, metaMigrationState)
	if err != nil {
		return "", err
	}
	if v == "" {
		return domain.MigrationNotStarted, nil
	}
	return domain.MigrationState(v), nil
}

func (s *SQLiteStore) MigratedAccount(ctx context.Context) (string, error) {
	return s.meta(ctx, metaMigrationAccount)
}

func (s *SQLiteStore) SetMigrationState(ctx context.Context, state domain.MigrationState, accountID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT value FROM device_meta WHERE key = ?`, metaMigrationState).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if current == "" {
		current = string(domain.MigrationNotStarted)
	}
	if err := checkMigrationTransition(domain.MigrationState(current), state); err != nil {
		return err
	}

	const upsert = `INSERT INTO device_meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	if _, err := tx.ExecContext(ctx, upsert, metaMigrationState, string(state)); err != nil {
		return fmt.Errorf("store migration state: %w", err)
	}
	if accountID != "" {
		if _, err := tx.ExecContext(ctx, upsert, metaMigrationAccount, accountID); err != nil {
			return fmt.Errorf("store migration account: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM device_meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read device meta %s: %w", key, err)
	}
	return v, nil
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteProgress(row sqliteScanner) (domain.ProgressRecord, error) {
	var (
		rec                  domain.ProgressRecord
		kind                 string
		payload              []byte
		createdAt, updatedAt int64
	)
	if err := row.Scan(&kind, &rec.ModuleID, &rec.SessionID, &payload, &createdAt, &updatedAt, &rec.Completed); err != nil {
		return domain.ProgressRecord{}, err
	}
	rec.Kind = domain.ProgressKind(kind)
	rec.Payload = payload
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.LastUpdated = time.Unix(0, updatedAt).UTC()
	return rec, nil
}

func encodeSnapshotMaps(s domain.ValueSnapshot) ([]byte, []byte, error) {
	axes, err := json.Marshal(s.Axes)
	if err != nil {
		return nil, nil, fmt.Errorf("encode axes: %w", err)
	}
	reasoning, err := json.Marshal(s.Reasoning)
	if err != nil {
		return nil, nil, fmt.Errorf("encode reasoning: %w", err)
	}
	return axes, reasoning, nil
}

func decodeSnapshotMaps(s *domain.ValueSnapshot, axes, reasoning []byte) error {
	if err := json.Unmarshal(axes, &s.Axes); err != nil {
		return fmt.Errorf("decode axes: %w", err)
	}
	if err := json.Unmarshal(reasoning, &s.Reasoning); err != nil {
		return fmt.Errorf("decode reasoning: %w", err)
	}
	return nil
}
