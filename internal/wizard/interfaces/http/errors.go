package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	attestation "github.com/wyfcoding/defiwizard/internal/attestation/domain"
	catalog "github.com/wyfcoding/defiwizard/internal/catalog/domain"
	risk "github.com/wyfcoding/defiwizard/internal/risk/domain"
	"github.com/wyfcoding/defiwizard/internal/wizard/domain"
	"github.com/wyfcoding/defiwizard/pkg/logger"
	"github.com/wyfcoding/defiwizard/pkg/response"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// 顺序敏感：StepNotComplete 需先于其 Cause 匹配
var errorMappings = []errorMapping{
	{domain.ErrStepNotComplete, http.StatusUnprocessableEntity, "STEP_NOT_COMPLETE"},
	{domain.ErrSessionNotFound, http.StatusNotFound, "SESSION_NOT_FOUND"},
	{catalog.ErrPoolNotFound, http.StatusNotFound, "POOL_NOT_FOUND"},
	{domain.ErrSessionClosed, http.StatusConflict, "SESSION_CLOSED"},
	{domain.ErrStepNotActive, http.StatusConflict, "STEP_NOT_ACTIVE"},
	{domain.ErrConfirmRequired, http.StatusConflict, "CONFIRM_REQUIRED"},
	{domain.ErrAttestationRequired, http.StatusConflict, "ATTESTATION_REQUIRED"},
	{domain.ErrNoPreviousStep, http.StatusConflict, "NO_PREVIOUS_STEP"},
	{attestation.ErrAttestationAlreadyInProgress, http.StatusConflict, "ATTESTATION_IN_PROGRESS"},
	{domain.ErrSubmitFailed, http.StatusBadGateway, "SUBMIT_FAILED"},
	{domain.ErrUnknownFlow, http.StatusBadRequest, "UNKNOWN_FLOW"},
	{risk.ErrInvalidQuantity, http.StatusBadRequest, "INVALID_QUANTITY"},
	{risk.ErrUnknownDurationClass, http.StatusBadRequest, "UNKNOWN_DURATION"},
	{risk.ErrUndercollateralized, http.StatusUnprocessableEntity, "UNDERCOLLATERALIZED"},
}

// writeError 将领域错误映射为 HTTP 状态码与稳定错误码
func writeError(c *gin.Context, err error) {
	var snc *domain.StepNotCompleteError
	if errors.As(err, &snc) {
		response.ErrorWithData(c, http.StatusUnprocessableEntity, "STEP_NOT_COMPLETE", snc.Reason, gin.H{"step": snc.Step})
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			response.ErrorWithStatus(c, m.status, m.code, err.Error())
			return
		}
	}
	logger.Error(c.Request.Context(), "wizard request failed", "path", c.FullPath(), "error", err)
	response.ErrorWithStatus(c, http.StatusInternalServerError, "INTERNAL", "internal error")
}
