package handler

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/statementdesk/statement-desk/internal/domain/import/normalizer"
	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

// OverrideBody is the JSON body of the create override endpoint.
type OverrideBody struct {
	Pattern      string  `json:"pattern" validate:"required,max=200"`
	MatchType    string  `json:"matchType" validate:"omitempty,oneof=exact contains regex"`
	MerchantName string  `json:"merchantName" validate:"required,max=200"`
	Category     *string `json:"category" validate:"omitempty,max=100"`
	Subcategory  *string `json:"subcategory" validate:"omitempty,max=100"`
}

// ListOverrides returns the caller's merchant corrections, most used first.
func (h *ImportHandler) ListOverrides(c *gin.Context) {
	if !h.requireOverrides(c) {
		return
	}
	overrides, err := h.overrides.GetOverridesForUser(c.Request.Context(), userIDFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if overrides == nil {
		overrides = normalizer.Overrides{}
	}
	c.JSON(http.StatusOK, gin.H{"overrides": overrides})
}

// CreateOverride saves a correction directly, without editing a transaction.
func (h *ImportHandler) CreateOverride(c *gin.Context) {
	if !h.requireOverrides(c) {
		return
	}
	var body OverrideBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", statement.ErrValidation, err))
		return
	}
	if err := h.validate.Struct(body); err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", statement.ErrValidation, err))
		return
	}
	if body.MatchType == normalizer.MatchRegex {
		if _, err := regexp.Compile(body.Pattern); err != nil {
			h.respondError(c, fmt.Errorf("%w: pattern: %v", statement.ErrValidation, err))
			return
		}
	}

	saved, err := h.overrides.SaveOverride(c.Request.Context(), normalizer.MerchantOverride{
		UserID:       userIDFrom(c),
		MatchPattern: body.Pattern,
		MatchType:    body.MatchType,
		MerchantName: body.MerchantName,
		Category:     body.Category,
		Subcategory:  body.Subcategory,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"override": saved})
}

// DeleteOverride forgets one correction.
func (h *ImportHandler) DeleteOverride(c *gin.Context) {
	if !h.requireOverrides(c) {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.overrides.DeleteOverride(c.Request.Context(), userIDFrom(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ImportHandler) requireOverrides(c *gin.Context) bool {
	if h.overrides == nil {
		h.respondError(c, fmt.Errorf("%w: merchant overrides need persistence", statement.ErrFeatureDisabled))
		return false
	}
	return true
}
