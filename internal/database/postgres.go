package database

import (
	"context"
	"time"

	"cryptotrack-alerts/internal/types"
	"cryptotrack-alerts/lib/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type alertModel struct {
	ID                string `gorm:"primaryKey"`
	UserID            string `gorm:"index;not null"`
	Cryptocurrency    string `gorm:"not null"`
	AlertType         string `gorm:"not null"`
	Condition         string `gorm:"not null"`
	TargetPrice       *float64
	PercentageChange  *float64
	VolumeThreshold   *float64
	CreationPrice     *float64
	EmailNotification bool       `gorm:"not null"`
	IsActive          bool       `gorm:"index:idx_price_alerts_active,priority:1;not null"`
	TriggeredAt       *time.Time `gorm:"index:idx_price_alerts_active,priority:2"`
	CreatedAt         time.Time
}

func (alertModel) TableName() string { return "price_alerts" }

type userModel struct {
	ID    string `gorm:"primaryKey"`
	Email *string
}

func (userModel) TableName() string { return "users" }

// PostgresStore is the alert store for the hosted Postgres backend.
type PostgresStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenPostgres connects with dsn and migrates the alert and user tables.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.NewGormLogger(log.StandardLogger())})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	if err := db.AutoMigrate(&alertModel{}, &userModel{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate tables")
	}
	return db, nil
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (r *PostgresStore) FetchActive(ctx context.Context) ([]types.Alert, error) {
	var models []alertModel
	if err := r.db.WithContext(ctx).Where("is_active = ? AND triggered_at IS NULL", true).Find(&models).Error; err != nil {
		return nil, errors.Wrapf(types.ErrStoreUnavailable, "failed to query alerts: %v", err)
	}
	return mapAlertsToDomain(models), nil
}

func (r *PostgresStore) ListAlerts(ctx context.Context) ([]types.Alert, error) {
	var models []alertModel
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, errors.Wrapf(types.ErrStoreUnavailable, "failed to query alerts: %v", err)
	}
	return mapAlertsToDomain(models), nil
}

func (r *PostgresStore) MarkTriggered(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&alertModel{}).
		Where("id = ? AND triggered_at IS NULL", id).
		Updates(map[string]interface{}{"triggered_at": r.now().UTC(), "is_active": false})
	if result.Error != nil {
		return errors.Wrapf(types.ErrStoreUnavailable, "failed to mark alert %s triggered: %v", id, result.Error)
	}
	if result.RowsAffected == 0 {
		log.Debugf("Alert %s was already triggered or does not exist", id)
	}
	return nil
}

func (r *PostgresStore) InsertAlert(ctx context.Context, a *types.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now().UTC()
	}
	model := mapAlertToModel(*a)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return errors.Wrap(err, "failed to insert alert")
	}
	return nil
}

func (r *PostgresStore) ResolveNotificationAddress(ctx context.Context, userID string) (string, error) {
	var model userModel
	err := r.db.WithContext(ctx).Where("id = ?", userID).Limit(1).Find(&model).Error
	if err != nil {
		return "", errors.Wrapf(types.ErrStoreUnavailable, "failed to look up user %s: %v", userID, err)
	}
	if model.Email == nil {
		return "", nil
	}
	return *model.Email, nil
}

func (r *PostgresStore) UpsertUser(ctx context.Context, u *types.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	email := u.Email
	if err := r.db.WithContext(ctx).Save(&userModel{ID: u.ID, Email: &email}).Error; err != nil {
		return errors.Wrap(err, "failed to save user")
	}
	return nil
}

func mapAlertsToDomain(models []alertModel) []types.Alert {
	alerts := make([]types.Alert, 0, len(models))
	for _, m := range models {
		alerts = append(alerts, types.Alert{
			ID:                    m.ID,
			UserID:                m.UserID,
			Asset:                 m.Cryptocurrency,
			Condition:             types.NewCondition(m.AlertType, m.Condition, m.TargetPrice, m.PercentageChange, m.VolumeThreshold),
			CreationSnapshotPrice: m.CreationPrice,
			NotifyByEmail:         m.EmailNotification,
			Active:                m.IsActive,
			TriggeredAt:           m.TriggeredAt,
			CreatedAt:             m.CreatedAt,
		})
	}
	return alerts
}

func mapAlertToModel(a types.Alert) alertModel {
	kind, direction, target, percentage, volume := types.Columns(a.Condition)
	return alertModel{
		ID:                a.ID,
		UserID:            a.UserID,
		Cryptocurrency:    a.Asset,
		AlertType:         kind,
		Condition:         direction,
		TargetPrice:       target,
		PercentageChange:  percentage,
		VolumeThreshold:   volume,
		CreationPrice:     a.CreationSnapshotPrice,
		EmailNotification: a.NotifyByEmail,
		IsActive:          a.Active,
		TriggeredAt:       a.TriggeredAt,
		CreatedAt:         a.CreatedAt,
	}
}
