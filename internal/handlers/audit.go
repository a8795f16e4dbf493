package handlers

import (
	"net/http"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/services"
	"github.com/elixpo/elixpoaccounts/internal/store"

	"github.com/gin-gonic/gin"
)

// AuditHandler exposes the audit trail to holders of audit:read.
type AuditHandler struct {
	audit *services.AuditService
}

func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List godoc
//
//	@Summary		Query audit logs
//	@Description	Paginated audit trail with optional event type, actor, severity, and time range filters. Timestamps are RFC 3339.
//	@Tags			Audit
//	@Produce		json
//	@Security		BearerAuth
//	@Param			page		query		int		false	"Page number"
//	@Param			page_size	query		int		false	"Page size (max 100)"
//	@Param			event_type	query		string	false	"Filter by event type"
//	@Param			actor		query		string	false	"Filter by actor user ID"
//	@Param			severity	query		string	false	"Filter by severity (info, warning, critical)"
//	@Param			since		query		string	false	"Only events at or after this time"
//	@Param			until		query		string	false	"Only events before this time"
//	@Success		200			{object}	object{logs=[]models.AuditLog,total=int,page=int}
//	@Router			/admin/audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	params := paginationFromQuery(c)

	filter := store.AuditLogFilter{
		EventType:   c.Query("event_type"),
		ActorUserID: c.Query("actor"),
		Severity:    c.Query("severity"),
	}
	if raw := c.Query("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Since = &t
		}
	}
	if raw := c.Query("until"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Until = &t
		}
	}

	logs, pagination, err := h.audit.GetAuditLogs(filter, params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"total": pagination.Total,
		"page":  pagination.CurrentPage,
	})
}
