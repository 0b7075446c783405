package database

import (
	"context"
	"database/sql"
	"time"

	"cryptotrack-alerts/internal/types"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SQLiteStore keeps alerts, users and persisted metrics in sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

const alertColumns = `id, user_id, cryptocurrency, alert_type, condition, target_price, percentage_change,
	volume_threshold, creation_price, email_notification, is_active, triggered_at, created_at`

// FetchActive returns every alert that is active and has never triggered.
func (s *SQLiteStore) FetchActive(ctx context.Context) ([]types.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM price_alerts WHERE is_active = 1 AND triggered_at IS NULL;`
	return s.queryAlerts(ctx, query)
}

// ListAlerts returns all alerts, newest first.
func (s *SQLiteStore) ListAlerts(ctx context.Context) ([]types.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM price_alerts ORDER BY created_at DESC;`
	return s.queryAlerts(ctx, query)
}

// GetAlert returns one alert, or nil when no alert has that id.
func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (*types.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM price_alerts WHERE id = ?;`
	alerts, err := s.queryAlerts(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, nil
	}
	return &alerts[0], nil
}

// MarkTriggered moves an alert to its terminal state in a single statement.
// The first trigger time is kept if the alert was already marked.
func (s *SQLiteStore) MarkTriggered(ctx context.Context, id string) error {
	query := `UPDATE price_alerts SET triggered_at = ?, is_active = 0 WHERE id = ? AND triggered_at IS NULL;`

	result, err := s.db.ExecContext(ctx, query, s.now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return errors.Wrapf(types.ErrStoreUnavailable, "failed to mark alert %s triggered: %v", id, err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		log.Debugf("Alert %s was already triggered or does not exist", id)
	}
	return nil
}

// InsertAlert saves a new alert. An empty ID is replaced with a fresh UUID.
func (s *SQLiteStore) InsertAlert(ctx context.Context, a *types.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	kind, direction, target, percentage, volume := types.Columns(a.Condition)

	query := `
	INSERT INTO price_alerts (` + alertColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.UserID, a.Asset, kind, direction,
		nullFloat(target), nullFloat(percentage), nullFloat(volume), nullFloat(a.CreationSnapshotPrice),
		a.NotifyByEmail, a.Active, nullTime(a.TriggeredAt), a.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert alert")
	}

	log.Debugf("Alert inserted successfully: ID: %s, User: %s, Asset: %s, Type: %s", a.ID, a.UserID, a.Asset, kind)
	return nil
}

func (s *SQLiteStore) queryAlerts(ctx context.Context, query string, args ...interface{}) ([]types.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(types.ErrStoreUnavailable, "failed to query alerts: %v", err)
	}
	defer rows.Close()

	var alerts []types.Alert
	for rows.Next() {
		var (
			a                                         types.Alert
			kind, direction, createdAt                string
			target, percentage, volume, creationPrice sql.NullFloat64
			triggeredAt                               sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Asset, &kind, &direction, &target, &percentage, &volume,
			&creationPrice, &a.NotifyByEmail, &a.Active, &triggeredAt, &createdAt); err != nil {
			return nil, errors.Wrapf(types.ErrStoreUnavailable, "failed to scan row: %v", err)
		}

		a.Condition = types.NewCondition(kind, direction, floatPtr(target), floatPtr(percentage), floatPtr(volume))
		a.CreationSnapshotPrice = floatPtr(creationPrice)
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if triggeredAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, triggeredAt.String); err == nil {
				a.TriggeredAt = &t
			}
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(types.ErrStoreUnavailable, "failed to read alerts: %v", err)
	}

	return alerts, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}
