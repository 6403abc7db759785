package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fisarsiv/fisarsiv-api/internal/application/normalizer"
	"github.com/fisarsiv/fisarsiv-api/internal/application/service"
	"github.com/fisarsiv/fisarsiv-api/internal/presentation/http/dto/request"
	"github.com/fisarsiv/fisarsiv-api/internal/presentation/http/dto/response"
	"github.com/fisarsiv/fisarsiv-api/pkg/apperror"
	"github.com/fisarsiv/fisarsiv-api/pkg/utils"
)

// ReceiptHandler handles receipt-related HTTP requests
type ReceiptHandler struct {
	receiptService *service.ReceiptService
}

// NewReceiptHandler creates a new receipt handler
func NewReceiptHandler(receiptService *service.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{receiptService: receiptService}
}

// Scan handles ingesting a raw QR payload
// @Summary Scan Receipt
// @Description Decode a raw QR payload, normalize it and store the receipt
// @Tags receipts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body request.ScanRequest true "Raw QR payload"
// @Success 201 {object} response.APIResponse
// @Failure 400 {object} response.APIResponse
// @Failure 422 {object} response.APIResponse
// @Router /receipts/scan [post]
func (h *ReceiptHandler) Scan(c *gin.Context) {
	userID := GetUserID(c)
	if userID == nil {
		response.Unauthorized(c, "User not authenticated")
		return
	}

	var req request.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	receipt, err := h.receiptService.CreateFromScan(c.Request.Context(), *userID, []byte(req.Payload))
	if err != nil {
		receiptError(c, err)
		return
	}

	response.Created(c, "Receipt saved", receipt)
}

// Create handles storing an already-decoded receipt payload
// @Summary Create Receipt
// @Description Normalize a decoded receipt payload and store it
// @Tags receipts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Success 201 {object} response.APIResponse
// @Failure 422 {object} response.APIResponse
// @Router /receipts [post]
func (h *ReceiptHandler) Create(c *gin.Context) {
	userID := GetUserID(c)
	if userID == nil {
		response.Unauthorized(c, "User not authenticated")
		return
	}

	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	receipt, err := h.receiptService.CreateFromRaw(c.Request.Context(), *userID, raw)
	if err != nil {
		receiptError(c, err)
		return
	}

	response.Created(c, "Receipt saved", receipt)
}

// List handles listing the user's active receipts
// @Summary List Receipts
// @Description List the user's receipts that are not in the trash, newest first
// @Tags receipts
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.APIResponse
// @Router /receipts [get]
func (h *ReceiptHandler) List(c *gin.Context) {
	userID := GetUserID(c)
	if userID == nil {
		response.Unauthorized(c, "User not authenticated")
		return
	}

	receipts, err := h.receiptService.ListActive(c.Request.Context(), *userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Receipts retrieved successfully", gin.H{
		"receipts": receipts,
		"count":    len(receipts),
	})
}

// ListTrash handles listing the user's trashed receipts
// @Summary List Trash
// @Description List the user's trashed receipts, newest first
// @Tags receipts
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.APIResponse
// @Router /receipts/trash [get]
func (h *ReceiptHandler) ListTrash(c *gin.Context) {
	userID := GetUserID(c)
	if userID == nil {
		response.Unauthorized(c, "User not authenticated")
		return
	}

	receipts, err := h.receiptService.ListDeleted(c.Request.Context(), *userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Trash retrieved successfully", gin.H{
		"receipts": receipts,
		"count":    len(receipts),
	})
}

// Get handles fetching a single receipt
// @Summary Get Receipt
// @Description Get one of the user's receipts by ID
// @Tags receipts
// @Security BearerAuth
// @Produce json
// @Param id path string true "Receipt ID"
// @Success 200 {object} response.APIResponse
// @Failure 404 {object} response.APIResponse
// @Router /receipts/{id} [get]
func (h *ReceiptHandler) Get(c *gin.Context) {
	userID := GetUserID(c)
	if userID == nil {
		response.Unauthorized(c, "User not authenticated")
		return
	}

	id, err := utils.ParseUUID(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid receipt ID")
		return
	}

	receipt, err := h.receiptService.Get(c.Request.Context(), *userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Receipt retrieved successfully", receipt)
}

// Delete handles moving a receipt to the trash
// @Summary Delete Receipt
// @Description Move a receipt to the trash
// @Tags receipts
// @Security BearerAuth
// @Param id path string true "Receipt ID"
// @Success 200 {object} response.APIResponse
// @Failure 404 {object} response.APIResponse
// @Router /receipts/{id} [delete]
func (h *ReceiptHandler) Delete(c *gin.Context) {
	userID := GetUserID(c)
	if userID == nil {
		response.Unauthorized(c, "User not authenticated")
		return
	}

	id, err := utils.ParseUUID(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid receipt ID")
		return
	}

	if err := h.receiptService.SoftDelete(c.Request.Context(), *userID, id); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Receipt moved to trash", nil)
}

// Restore handles moving a receipt back out of the trash
// @Summary Restore Receipt
// @Description Move a trashed receipt back to the active list
// @Tags receipts
// @Security BearerAuth
// @Param id path string true "Receipt ID"
// @Success 200 {object} response.APIResponse
// @Failure 404 {object} response.APIResponse
// @Router /receipts/{id}/restore [post]
func (h *ReceiptHandler) Restore(c *gin.Context) {
	userID := GetUserID(c)
	if userID == nil {
		response.Unauthorized(c, "User not authenticated")
		return
	}

	id, err := utils.ParseUUID(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid receipt ID")
		return
	}

	if err := h.receiptService.Restore(c.Request.Context(), *userID, id); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Receipt restored", nil)
}

// HardDelete handles permanently removing a receipt
// @Summary Permanently Delete Receipt
// @Description Permanently remove a receipt. This cannot be undone
// @Tags receipts
// @Security BearerAuth
// @Param id path string true "Receipt ID"
// @Success 200 {object} response.APIResponse
// @Failure 404 {object} response.APIResponse
// @Router /receipts/{id}/permanent [delete]
func (h *ReceiptHandler) HardDelete(c *gin.Context) {
	userID := GetUserID(c)
	if userID == nil {
		response.Unauthorized(c, "User not authenticated")
		return
	}

	id, err := utils.ParseUUID(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid receipt ID")
		return
	}

	if err := h.receiptService.HardDelete(c.Request.Context(), *userID, id); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Receipt permanently deleted", nil)
}

// EmptyTrash handles permanently removing every trashed receipt
// @Summary Empty Trash
// @Description Permanently remove every trashed receipt. This cannot be undone
// @Tags receipts
// @Security BearerAuth
// @Success 200 {object} response.APIResponse
// @Router /receipts/trash [delete]
func (h *ReceiptHandler) EmptyTrash(c *gin.Context) {
	userID := GetUserID(c)
	if userID == nil {
		response.Unauthorized(c, "User not authenticated")
		return
	}

	if err := h.receiptService.EmptyTrash(c.Request.Context(), *userID); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Trash emptied", nil)
}

// MigrateLocal handles importing a client's pre-account local records
// @Summary Migrate Local Receipts
// @Description Import the receipts a client kept in its local store before signing up
// @Tags receipts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body request.MigrateLocalRequest true "Local records"
// @Success 200 {object} response.APIResponse
// @Failure 422 {object} response.APIResponse
// @Router /receipts/migrate-local [post]
func (h *ReceiptHandler) MigrateLocal(c *gin.Context) {
	userID := GetUserID(c)
	if userID == nil {
		response.Unauthorized(c, "User not authenticated")
		return
	}

	var req request.MigrateLocalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	records := req.Receipts
	if len(records) == 0 && req.Export != "" {
		var err error
		records, err = normalizer.DecodeLegacyExport([]byte(req.Export))
		if err != nil {
			response.BadRequest(c, "Export is not a valid receipt array")
			return
		}
	}
	if len(records) == 0 {
		response.BadRequest(c, "No receipts to migrate")
		return
	}

	migrated, err := h.receiptService.MigrateLocal(c.Request.Context(), *userID, records)
	if err != nil {
		// Partial progress matters to the client: it must know which
		// records are safe to drop from local storage.
		appErr := apperror.GetAppError(err)
		var verr *normalizer.ValidationError
		if errors.As(err, &verr) {
			appErr = apperror.NewAppError(422, verr.Error())
		}
		c.JSON(appErr.Code, response.APIResponse{
			Success: false,
			Message: appErr.Message,
			Data:    gin.H{"migrated": migrated},
		})
		return
	}

	response.OK(c, "Migrated "+strconv.Itoa(migrated)+" receipts", gin.H{"migrated": migrated})
}

// Backfill handles upgrading legacy flat records to the current shape
// @Summary Backfill Receipts
// @Description Upgrade the user's legacy flat records to the nested totals/payment shape
// @Tags receipts
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.APIResponse
// @Router /receipts/backfill [post]
func (h *ReceiptHandler) Backfill(c *gin.Context) {
	userID := GetUserID(c)
	if userID == nil {
		response.Unauthorized(c, "User not authenticated")
		return
	}

	upgraded, err := h.receiptService.BackfillLegacyShape(c.Request.Context(), *userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Backfill complete", gin.H{"upgraded": upgraded})
}

// receiptError maps normalization failures to the right status: malformed
// payloads are 400s, payloads that decoded but failed validation are 422s.
func receiptError(c *gin.Context, err error) {
	if errors.Is(err, normalizer.ErrEmptyPayload) || errors.Is(err, normalizer.ErrMalformedPayload) {
		response.BadRequest(c, err.Error())
		return
	}

	var verr *normalizer.ValidationError
	if errors.As(err, &verr) {
		response.ValidationError(c, []apperror.FieldError{
			{Field: verr.Field, Message: verr.Error()},
		})
		return
	}

	response.Error(c, err)
}
