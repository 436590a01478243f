package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	attestation "github.com/wyfcoding/defiwizard/internal/attestation/domain"
	catalog "github.com/wyfcoding/defiwizard/internal/catalog/domain"
	"github.com/wyfcoding/defiwizard/internal/catalog/infrastructure/persistence/memory"
	risk "github.com/wyfcoding/defiwizard/internal/risk/domain"
	"github.com/wyfcoding/defiwizard/internal/wizard/application"
	"github.com/wyfcoding/defiwizard/internal/wizard/domain"
	"github.com/wyfcoding/defiwizard/pkg/middleware"
)

type okSubmitter struct{}

func (okSubmitter) Submit(ctx context.Context, sub *domain.Submission) error { return nil }

type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	d := decimal.RequireFromString
	pools, err := memory.NewPoolRepository([]*catalog.Pool{
		{
			AssetID: "ETH", UnitValue: d("1700"), RatePct: d("2"), AvailableLiquidity: d("100"),
			MinOperationAmount: d("0.01"), LoanToValueMaxPct: d("75"), LiquidationThresholdPct: d("80"),
			CollateralEnabled: true,
		},
		{
			AssetID: "USDC", UnitValue: d("1"), RatePct: d("8.5"), AvailableLiquidity: d("50000"),
			MinOperationAmount: d("10"), LoanToValueMaxPct: d("80"), LiquidationThresholdPct: d("85"),
			CollateralEnabled: true,
		},
	})
	require.NoError(t, err)
	runner := attestation.NewRunner(attestation.AttestorFunc(func(ctx context.Context, id string) (attestation.Proof, error) {
		return attestation.Proof{SessionID: id, Backend: "test", Digest: "d"}, nil
	}))
	svc := application.NewWizardService(pools, memory.NewHoldingRepository(nil), runner, okSubmitter{}, risk.DefaultThresholds())

	r := gin.New()
	r.Use(middleware.GinLoggingMiddleware())
	NewWizardHandler(svc).RegisterRoutes(&r.RouterGroup)
	return r
}

func call(t *testing.T, r *gin.Engine, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestWizardHTTPBorrowFlow(t *testing.T) {
	r := newRouter(t)

	code, env := call(t, r, http.MethodPost, "/api/v1/wizard/sessions", gin.H{"flow": "borrow"})
	require.Equal(t, http.StatusCreated, code)
	assert.NotEmpty(t, env.RequestID)
	var sess application.SessionDTO
	require.NoError(t, json.Unmarshal(env.Data, &sess))
	base := "/api/v1/wizard/sessions/" + sess.ID

	code, _ = call(t, r, http.MethodPost, base+"/asset", gin.H{"asset_id": "USDC"})
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, r, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, r, http.MethodPost, base+"/collateral", gin.H{"asset_id": "ETH", "quantity": "5"})
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, r, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, code)

	code, env = call(t, r, http.MethodPost, base+"/amount", gin.H{"quantity": "7200"})
	require.Equal(t, http.StatusOK, code)
	code, env = call(t, r, http.MethodPost, base+"/advance", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "STEP_NOT_COMPLETE", env.Code)
	assert.Equal(t, domain.ReasonExceedsMaxBorrow, env.Message)
	assert.JSONEq(t, `{"step":"ENTER_AMOUNT"}`, string(env.Data))

	call(t, r, http.MethodPost, base+"/amount", gin.H{"quantity": "6000"})
	code, env = call(t, r, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, code)
	var tr application.TransitionDTO
	require.NoError(t, json.Unmarshal(env.Data, &tr))
	assert.Equal(t, domain.StepAttest, tr.Transition.To)
	assert.Contains(t, tr.Transition.Warnings, risk.WarningModerateRisk)

	code, env = call(t, r, http.MethodPost, base+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "STEP_NOT_ACTIVE", env.Code)

	code, _ = call(t, r, http.MethodPost, base+"/attestation", nil)
	require.Equal(t, http.StatusAccepted, code)
	code, env = call(t, r, http.MethodGet, base+"/attestation?wait=5s", nil)
	require.Equal(t, http.StatusOK, code)
	var att application.AttestationDTO
	require.NoError(t, json.Unmarshal(env.Data, &att))
	assert.Equal(t, attestation.StatusSucceeded, att.Status)

	code, _ = call(t, r, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, code)
	code, env = call(t, r, http.MethodPost, base+"/advance", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFIRM_REQUIRED", env.Code)

	code, env = call(t, r, http.MethodPost, base+"/confirm", nil)
	require.Equal(t, http.StatusOK, code)
	var confirmed application.ConfirmDTO
	require.NoError(t, json.Unmarshal(env.Data, &confirmed))
	assert.Equal(t, domain.OutcomeSucceeded, confirmed.Session.Outcome)

	code, env = call(t, r, http.MethodPost, base+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "SESSION_CLOSED", env.Code)
}

func TestWizardHTTPErrors(t *testing.T) {
	r := newRouter(t)

	code, env := call(t, r, http.MethodPost, "/api/v1/wizard/sessions", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ARGUMENT", env.Code)

	code, env = call(t, r, http.MethodPost, "/api/v1/wizard/sessions", gin.H{"flow": "stake"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "UNKNOWN_FLOW", env.Code)

	code, env = call(t, r, http.MethodGet, "/api/v1/wizard/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "SESSION_NOT_FOUND", env.Code)

	_, env = call(t, r, http.MethodPost, "/api/v1/wizard/sessions", gin.H{"flow": "deposit"})
	var sess application.SessionDTO
	require.NoError(t, json.Unmarshal(env.Data, &sess))
	base := "/api/v1/wizard/sessions/" + sess.ID

	code, env = call(t, r, http.MethodPost, base+"/asset", gin.H{"asset_id": "DOGE"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "POOL_NOT_FOUND", env.Code)

	code, env = call(t, r, http.MethodPost, base+"/back", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "NO_PREVIOUS_STEP", env.Code)

	call(t, r, http.MethodPost, base+"/asset", gin.H{"asset_id": "USDC"})
	call(t, r, http.MethodPost, base+"/advance", nil)
	code, env = call(t, r, http.MethodPost, base+"/amount", gin.H{"quantity": "Infinity"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_QUANTITY", env.Code)

	code, env = call(t, r, http.MethodGet, base+"/attestation?wait=soon", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = call(t, r, http.MethodGet, base+"/attestation", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"IDLE"}`, string(env.Data))
}
