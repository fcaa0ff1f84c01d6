package handler

import (
	"net/http"

	mergeDto "anoa.com/evalhub/internal/modules/merge/dto"
	merge "anoa.com/evalhub/internal/modules/merge/service"
	"anoa.com/evalhub/pkg/response"
	pkgValidator "anoa.com/evalhub/pkg/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type MergeHandler struct {
	service merge.Service
}

func NewMergeHandler(service merge.Service) *MergeHandler {
	return &MergeHandler{service: service}
}

// MergeUsers consolidates the secondary account into the primary one. A
// blocked merge answers 409 with the error tags; the store is untouched
// in that case.
func (h *MergeHandler) MergeUsers(c *gin.Context) {
	var req mergeDto.MergeUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": pkgValidator.FormatValidationError(err)})
		return
	}

	primaryID, err := uuid.Parse(req.PrimaryID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid primary_id"})
		return
	}
	secondaryID, err := uuid.Parse(req.SecondaryID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid secondary_id"})
		return
	}
	if primaryID == secondaryID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "primary_id and secondary_id must differ"})
		return
	}

	result, err := h.service.MergeUsers(c.Request.Context(), primaryID, secondaryID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if result.Blocked() {
		c.JSON(http.StatusConflict, result)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Cleanup strips the user out of other users' delegate and cc lists
// without deleting the account. With dry_run the change log is returned
// but nothing is applied.
func (h *MergeHandler) Cleanup(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req mergeDto.CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": pkgValidator.FormatValidationError(err)})
		return
	}

	ignore := make([]uuid.UUID, 0, len(req.IgnoreIDs))
	for _, raw := range req.IgnoreIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id in ignore_ids"})
			return
		}
		ignore = append(ignore, id)
	}

	messages, err := h.service.RemoveUserFromDelegatesAndCCLists(c.Request.Context(), userID, ignore, req.DryRun)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, mergeDto.CleanupResponse{Messages: messages, DryRun: req.DryRun})
}
