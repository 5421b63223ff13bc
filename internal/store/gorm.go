package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/quillon/ruleflow/internal/models"
)

// Open connects to the configured database and migrates the engine's tables.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&models.Rule{},
		&models.RuleCondition{},
		&models.RuleAction{},
		&models.ExecutionLog{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// GormRuleStore implements RuleStore on gorm.
type GormRuleStore struct {
	db *gorm.DB
}

func NewGormRuleStore(db *gorm.DB) *GormRuleStore {
	return &GormRuleStore{db: db}
}

func (s *GormRuleStore) preload(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Conditions", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Actions", func(db *gorm.DB) *gorm.DB { return db.Order("step_order ASC") })
}

func (s *GormRuleStore) Get(ctx context.Context, id uint) (*models.Rule, error) {
	var rule models.Rule
	err := s.preload(s.db.WithContext(ctx)).First(&rule, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: rule %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (s *GormRuleStore) ActiveByEvent(ctx context.Context, entityType string, kind models.EventKind) ([]models.Rule, error) {
	var rules []models.Rule
	err := s.preload(s.db.WithContext(ctx)).
		Where("active = ? AND trigger_kind = ? AND entity_type = ? AND event_kind = ?",
			true, models.TriggerEvent, entityType, kind).
		Find(&rules).Error
	return rules, err
}

func (s *GormRuleStore) ActiveSchedules(ctx context.Context) ([]models.Rule, error) {
	var rules []models.Rule
	err := s.preload(s.db.WithContext(ctx)).
		Where("active = ? AND trigger_kind = ?", true, models.TriggerSchedule).
		Find(&rules).Error
	return rules, err
}

func (s *GormRuleStore) List(ctx context.Context, tenantID string) ([]models.Rule, error) {
	q := s.preload(s.db.WithContext(ctx))
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	var rules []models.Rule
	err := q.Order("id ASC").Find(&rules).Error
	return rules, err
}

func (s *GormRuleStore) Upsert(ctx context.Context, rule *models.Rule) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Rule
		err := tx.Where("tenant_id = ? AND name = ?", rule.TenantID, rule.Name).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(rule).Error
		case err != nil:
			return err
		}
		// Replace conditions and actions wholesale; they are composition,
		// their lifetime is bound to the rule.
		if err := tx.Where("rule_id = ?", existing.ID).Delete(&models.RuleCondition{}).Error; err != nil {
			return err
		}
		if err := tx.Where("rule_id = ?", existing.ID).Delete(&models.RuleAction{}).Error; err != nil {
			return err
		}
		rule.ID = existing.ID
		for i := range rule.Conditions {
			rule.Conditions[i].RuleID = existing.ID
		}
		for i := range rule.Actions {
			rule.Actions[i].RuleID = existing.ID
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(rule).Error
	})
}

func (s *GormRuleStore) SetActive(ctx context.Context, id uint, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.Rule{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: rule %d", ErrNotFound, id)
	}
	return nil
}

// GormLogStore implements LogStore on gorm.
type GormLogStore struct {
	db *gorm.DB
}

func NewGormLogStore(db *gorm.DB) *GormLogStore {
	return &GormLogStore{db: db}
}

func (s *GormLogStore) Create(ctx context.Context, log *models.ExecutionLog) error {
	err := s.db.WithContext(ctx).Create(log).Error
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, log.DedupeKey)
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func (s *GormLogStore) load(tx *gorm.DB, id string) (*models.ExecutionLog, error) {
	var log models.ExecutionLog
	err := tx.First(&log, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: log %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

func (s *GormLogStore) Transition(ctx context.Context, id string, to models.LogStatus) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		log, err := s.load(tx, id)
		if err != nil {
			return err
		}
		if log.Status.Terminal() || to.Rank() <= log.Status.Rank() {
			return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, log.Status, to)
		}
		updates := map[string]interface{}{"status": to}
		now := time.Now().UTC()
		if log.StartedAt == nil {
			updates["started_at"] = now
		}
		if to.Terminal() {
			updates["finished_at"] = now
		}
		return tx.Model(log).Updates(updates).Error
	})
}

func (s *GormLogStore) SetConditionResults(ctx context.Context, id string, results []models.ConditionResult) error {
	return s.db.WithContext(ctx).Model(&models.ExecutionLog{ID: id}).
		Update("condition_results", models.ConditionResults(results)).Error
}

func (s *GormLogStore) AppendStep(ctx context.Context, id string, step models.ActionStepResult) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		log, err := s.load(tx, id)
		if err != nil {
			return err
		}
		if log.Status.Terminal() {
			return fmt.Errorf("%w: append step to terminal log", ErrInvalidTransition)
		}
		steps := append(log.StepResults, step)
		return tx.Model(log).Update("step_results", steps).Error
	})
}

func (s *GormLogStore) Fail(ctx context.Context, id string, msg string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		log, err := s.load(tx, id)
		if err != nil {
			return err
		}
		if log.Status.Terminal() {
			return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, log.Status)
		}
		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":        models.StatusFailed,
			"error_message": msg,
			"finished_at":   now,
		}
		if log.StartedAt == nil {
			updates["started_at"] = now
		}
		return tx.Model(log).Updates(updates).Error
	})
}

func (s *GormLogStore) Get(ctx context.Context, id string) (*models.ExecutionLog, error) {
	return s.load(s.db.WithContext(ctx), id)
}

func (s *GormLogStore) Pending(ctx context.Context) ([]models.ExecutionLog, error) {
	var logs []models.ExecutionLog
	err := s.db.WithContext(ctx).
		Where("status = ?", models.StatusPending).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}

func (s *GormLogStore) Query(ctx context.Context, q LogQuery) ([]models.ExecutionLog, error) {
	db := s.db.WithContext(ctx).Model(&models.ExecutionLog{})
	if q.RuleID != nil {
		db = db.Where("rule_id = ?", *q.RuleID)
	}
	if q.TenantID != "" {
		db = db.Where("tenant_id = ?", q.TenantID)
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	if q.EntityType != "" {
		db = db.Where("entity_type = ?", q.EntityType)
	}
	if q.EntityID != "" {
		db = db.Where("entity_id = ?", q.EntityID)
	}
	if q.From != nil {
		db = db.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		db = db.Where("created_at < ?", *q.To)
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var logs []models.ExecutionLog
	err := db.Order("created_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
