package store

import (
	"time"

	"github.com/elixpo/elixpoaccounts/internal/models"
)

// Audit log operations

func (s *Store) CreateAuditLog(entry *models.AuditLog) error {
	return s.db.Create(entry).Error
}

// CreateAuditLogBatch inserts a batch in one statement. The audit service
// flushes its buffer through here.
func (s *Store) CreateAuditLogBatch(entries []models.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.Create(&entries).Error
}

type AuditLogFilter struct {
	EventType   string
	ActorUserID string
	Severity    string
	Since       *time.Time
	Until       *time.Time
}

func (s *Store) GetAuditLogsPaginated(filter AuditLogFilter, params PaginationParams) ([]models.AuditLog, *PaginationResult, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.Model(&models.AuditLog{})
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.ActorUserID != "" {
		query = query.Where("actor_user_id = ?", filter.ActorUserID)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if filter.Until != nil {
		query = query.Where("created_at <= ?", filter.Until)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	offset := (params.Page - 1) * params.PageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(params.PageSize).Find(&logs).Error; err != nil {
		return nil, nil, err
	}

	pagination := CalculatePagination(total, params.Page, params.PageSize)
	return logs, &pagination, nil
}

// DeleteOldAuditLogs trims entries older than the retention horizon.
func (s *Store) DeleteOldAuditLogs(before time.Time) (int64, error) {
	result := s.db.Where("created_at < ?", before).Delete(&models.AuditLog{})
	return result.RowsAffected, result.Error
}
