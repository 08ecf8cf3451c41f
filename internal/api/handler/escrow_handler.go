package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/freelance-escrow/internal/api/dto"
	"github.com/cuongbtq/freelance-escrow/internal/api/model"
	"github.com/cuongbtq/freelance-escrow/internal/api/service"
	"github.com/cuongbtq/freelance-escrow/internal/api/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// IdempotencyKeyHeader lets callers retry create/release safely
	IdempotencyKeyHeader = "X-Idempotency-Key"

	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateEscrow handles POST /api/v1/escrows
// Places a payment hold and records a PENDING escrow for the project
func (h *EscrowHandler) CreateEscrow(c *gin.Context) {
	var req dto.CreateEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		respondInvalidInput(c, "invalid request body")
		return
	}

	res, err := h.escrows.CreateEscrow(c.Request.Context(), service.CreateEscrowInput{
		ProjectID:      req.ProjectID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		CreatedBy:      c.GetString(ContextUserIDKey),
		IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreateEscrowResponse{
		Escrow:       toEscrowDTO(res.Escrow),
		ClientSecret: res.ClientSecret,
	})
}

// GetEscrowByProjectID handles GET /api/v1/escrows/project/:project_id
func (h *EscrowHandler) GetEscrowByProjectID(c *gin.Context) {
	projectID := c.Param("project_id")
	if projectID == "" {
		respondInvalidInput(c, "project_id is required")
		return
	}

	escrow, err := h.escrows.GetEscrowByProjectID(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.EscrowResponse{Escrow: toEscrowDTO(escrow)})
}

// GetEscrow handles GET /api/v1/escrows/:id
func (h *EscrowHandler) GetEscrow(c *gin.Context) {
	id, ok := h.escrowID(c)
	if !ok {
		return
	}

	escrow, err := h.escrows.GetEscrow(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.EscrowResponse{Escrow: toEscrowDTO(escrow)})
}

// ListEscrows handles GET /api/v1/escrows
// Lists escrows newest first with keyset pagination
func (h *EscrowHandler) ListEscrows(c *gin.Context) {
	var req dto.ListEscrowsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		respondInvalidInput(c, "invalid query parameters")
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}

	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeEscrowCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		respondInvalidInput(c, "invalid cursor")
		return
	}

	escrows, err := h.escrows.ListEscrows(c.Request.Context(), storage.EscrowFilter{
		ProjectID: req.ProjectID,
		Status:    req.Status,
		PageSize:  req.PageSize,
		Cursor:    cursor,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	hasMore := len(escrows) > req.PageSize
	if hasMore {
		escrows = escrows[:req.PageSize]
	}

	items := make([]dto.EscrowDTO, len(escrows))
	for i := range escrows {
		items[i] = toEscrowDTO(&escrows[i])
	}

	var nextCursor string
	if hasMore {
		last := escrows[len(escrows)-1]
		nextCursor = EncodeEscrowCursor(&storage.EscrowCursor{
			CreatedAt: last.CreatedAt,
			EscrowID:  last.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListEscrowsResponse{
		Escrows:    items,
		NextCursor: nextCursor,
	})
}

// ListTransactions handles GET /api/v1/escrows/:id/transactions
func (h *EscrowHandler) ListTransactions(c *gin.Context) {
	id, ok := h.escrowID(c)
	if !ok {
		return
	}

	entries, err := h.escrows.ListTransactions(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	items := make([]dto.TransactionDTO, len(entries))
	for i, entry := range entries {
		items[i] = dto.TransactionDTO{
			ID:        entry.ID,
			Type:      entry.Type,
			Amount:    entry.Amount.StringFixed(2),
			CreatedAt: entry.CreatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, dto.ListTransactionsResponse{Transactions: items})
}

// ReleaseFunds handles POST /api/v1/escrows/:id/release
// Captures part or all of the held amount
func (h *EscrowHandler) ReleaseFunds(c *gin.Context) {
	id, ok := h.escrowID(c)
	if !ok {
		return
	}

	var req dto.ReleaseFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		respondInvalidInput(c, "invalid request body")
		return
	}

	escrow, err := h.escrows.ReleaseFunds(c.Request.Context(), service.ReleaseFundsInput{
		EscrowID:       id,
		Amount:         req.Amount,
		IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.EscrowResponse{Escrow: toEscrowDTO(escrow)})
}

// CancelEscrow handles POST /api/v1/escrows/:id/cancel
// Voids the remaining hold
func (h *EscrowHandler) CancelEscrow(c *gin.Context) {
	id, ok := h.escrowID(c)
	if !ok {
		return
	}

	escrow, err := h.escrows.CancelEscrow(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.EscrowResponse{Escrow: toEscrowDTO(escrow)})
}

func (h *EscrowHandler) escrowID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		h.logger.Warn("Invalid escrow id format", slog.String("id", id), slog.String("error", err.Error()))
		respondInvalidInput(c, "id must be a valid UUID")
		return "", false
	}
	return id, true
}

func toEscrowDTO(e *model.Escrow) dto.EscrowDTO {
	return dto.EscrowDTO{
		ID:               e.ID,
		ProjectID:        e.ProjectID,
		Amount:           e.Amount.StringFixed(2),
		ReleasedAmount:   e.ReleasedAmount.StringFixed(2),
		RemainingAmount:  e.Remaining().StringFixed(2),
		Currency:         e.Currency,
		Status:           e.Status,
		PaymentReference: e.PaymentReference,
		CreatedAt:        e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        e.UpdatedAt.Format(time.RFC3339),
	}
}
