package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	attestation "github.com/wyfcoding/defiwizard/internal/attestation/domain"
	catalog "github.com/wyfcoding/defiwizard/internal/catalog/domain"
	risk "github.com/wyfcoding/defiwizard/internal/risk/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testPools() []*catalog.Pool {
	return []*catalog.Pool{
		{
			AssetID: "ETH", Symbol: "ETH", UnitValue: d("1700"), RatePct: d("2"),
			AvailableLiquidity: d("10000"), MinOperationAmount: d("0.01"),
			LoanToValueMaxPct: d("75"), LiquidationThresholdPct: d("80"), CollateralEnabled: true,
		},
		{
			AssetID: "USDC", Symbol: "USDC", UnitValue: d("1"), RatePct: d("8.5"),
			AvailableLiquidity: d("1000000"), MinOperationAmount: d("10"),
			LoanToValueMaxPct: d("80"), LiquidationThresholdPct: d("85"), CollateralEnabled: true,
		},
		{
			AssetID: "DAI", Symbol: "DAI", UnitValue: d("1"), RatePct: d("5"),
			AvailableLiquidity: d("5000"), MinOperationAmount: d("1"),
		},
	}
}

type recordingSubmitter struct {
	subs []*Submission
	err  error
}

func (r *recordingSubmitter) Submit(ctx context.Context, sub *Submission) error {
	if r.err != nil {
		return r.err
	}
	r.subs = append(r.subs, sub)
	return nil
}

func newSession(t *testing.T, flow Flow, accountID string, holdings ...*catalog.Holding) (*Session, *attestation.Runner) {
	t.Helper()
	runner := attestation.NewRunner(attestation.AttestorFunc(func(ctx context.Context, id string) (attestation.Proof, error) {
		return attestation.Proof{SessionID: id, Backend: "test", Digest: "ok"}, nil
	}))
	snap := catalog.NewSnapshot(accountID, testPools(), holdings)
	s, err := NewSession("sess-"+string(flow), flow, snap, risk.DefaultThresholds(), runner)
	require.NoError(t, err)
	return s, runner
}

func attest(t *testing.T, s *Session) {
	t.Helper()
	h, err := s.StartAttestation(context.Background())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = h.Wait(ctx)
	require.NoError(t, err)
}

func reachBorrowAmount(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.SelectAsset("USDC"))
	_, err := s.Advance()
	require.NoError(t, err)
	require.NoError(t, s.SelectCollateral("ETH", d("5")))
	_, err = s.Advance()
	require.NoError(t, err)
	require.Equal(t, StepEnterAmount, s.Step())
}

func requireNotComplete(t *testing.T, err error, reason string) *StepNotCompleteError {
	t.Helper()
	require.ErrorIs(t, err, ErrStepNotComplete)
	var snc *StepNotCompleteError
	require.True(t, errors.As(err, &snc))
	assert.Equal(t, reason, snc.Reason)
	return snc
}

func TestBorrowFlowHappyPath(t *testing.T) {
	s, _ := newSession(t, FlowBorrow, "")
	assert.Equal(t, []StepID{StepSelectAsset, StepSelectCollateral, StepEnterAmount, StepAttest, StepConfirm, StepDone}, s.Steps())

	reachBorrowAmount(t, s)
	require.NoError(t, s.EnterAmount(d("6000"), risk.DurationFlexible))

	dr, err := s.Risk()
	require.NoError(t, err)
	assert.True(t, dr.MaxBorrowValue.Equal(d("6375")))
	assert.Equal(t, risk.TierRisky, dr.Tier)

	tr, err := s.Advance()
	require.NoError(t, err, "hf 1.1333 is above the hard floor")
	assert.Equal(t, StepEnterAmount, tr.From)
	assert.Equal(t, StepAttest, tr.To)
	assert.Contains(t, tr.Warnings, risk.WarningModerateRisk)

	_, err = s.Advance()
	snc := requireNotComplete(t, err, "attestation not started")
	assert.ErrorIs(t, snc, ErrAttestationRequired)

	attest(t, s)
	_, err = s.Advance()
	require.NoError(t, err)
	assert.Equal(t, StepConfirm, s.Step())

	_, err = s.Advance()
	assert.ErrorIs(t, err, ErrConfirmRequired)

	sub := &recordingSubmitter{}
	got, err := s.Confirm(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, sub.subs, 1)
	assert.Equal(t, FlowBorrow, got.Flow)
	require.NotNil(t, got.Proof)
	assert.Equal(t, "ok", got.Proof.Digest)
	assert.True(t, got.Position.Principal.Quantity.Equal(d("6000")))
	assert.Equal(t, OutcomeSucceeded, s.Outcome())
	assert.Equal(t, StepDone, s.Step())

	_, err = s.Advance()
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestBorrowExceedsMaximumBorrow(t *testing.T) {
	s, _ := newSession(t, FlowBorrow, "")
	reachBorrowAmount(t, s)
	require.NoError(t, s.EnterAmount(d("7200"), risk.DurationFlexible))

	_, err := s.Advance()
	snc := requireNotComplete(t, err, ReasonExceedsMaxBorrow)
	assert.Equal(t, StepEnterAmount, snc.Step)
	assert.ErrorIs(t, err, risk.ErrUndercollateralized)
	assert.Equal(t, StepEnterAmount, s.Step())
}

func TestBorrowHealthFactorFloor(t *testing.T) {
	s, _ := newSession(t, FlowBorrow, "")
	reachBorrowAmount(t, s)
	// 恰好在最大 LTV：hf = 6800/6375 ≈ 1.0667
	require.NoError(t, s.EnterAmount(d("6375"), risk.DurationFlexible))

	_, err := s.Advance()
	requireNotComplete(t, err, "health factor below 1.1")
}

func TestBorrowCollateralGuard(t *testing.T) {
	s, _ := newSession(t, FlowBorrow, "acct-1", &catalog.Holding{AccountID: "acct-1", AssetID: "ETH", Quantity: d("2")})
	require.NoError(t, s.SelectAsset("USDC"))
	_, err := s.Advance()
	require.NoError(t, err)

	_, err = s.Advance()
	requireNotComplete(t, err, ReasonNoCollateral)

	require.NoError(t, s.SelectCollateral("DAI", d("100")))
	_, err = s.Advance()
	requireNotComplete(t, err, ReasonCollateralDisabled)

	require.NoError(t, s.SelectCollateral("USDC", d("100")))
	_, err = s.Advance()
	requireNotComplete(t, err, ReasonSameAsset)

	require.NoError(t, s.SelectCollateral("ETH", d("5")))
	_, err = s.Advance()
	requireNotComplete(t, err, ReasonCollateralBalance)

	require.NoError(t, s.SelectCollateral("ETH", d("2")))
	_, err = s.Advance()
	require.NoError(t, err)

	assert.ErrorIs(t, s.SelectCollateral("ETH", d("-1")), ErrStepNotActive)
}

func TestEnterAmountWithoutPrincipalIsPrecondition(t *testing.T) {
	s, _ := newSession(t, FlowDeposit, "")
	require.NoError(t, s.SelectAsset("USDC"))
	_, err := s.Advance()
	require.NoError(t, err)

	s.position.Principal = nil
	err = s.EnterAmount(d("100"), risk.DurationFlexible)
	assert.ErrorIs(t, err, ErrStepNotActive)
	assert.NotErrorIs(t, err, ErrStepNotComplete)
	assert.Equal(t, StepEnterAmount, s.Step())
}

func TestDepositAmountValidation(t *testing.T) {
	s, _ := newSession(t, FlowDeposit, "acct-1", &catalog.Holding{AccountID: "acct-1", AssetID: "USDC", Quantity: d("500")})
	assert.Equal(t, []StepID{StepSelectAsset, StepEnterAmount, StepAttest, StepConfirm, StepDone}, s.Steps())

	_, err := s.Advance()
	requireNotComplete(t, err, ReasonNoAsset)

	require.NoError(t, s.SelectAsset("USDC"))
	_, err = s.Advance()
	require.NoError(t, err)

	cases := []struct {
		amount string
		cause  error
	}{
		{"0", risk.ErrNonPositiveAmount},
		{"5", risk.ErrBelowMinimum},
		{"600", risk.ErrExceedsAvailableLiquidity},
	}
	for _, tc := range cases {
		require.NoError(t, s.EnterAmount(d(tc.amount), ""))
		_, err = s.Advance()
		require.ErrorIs(t, err, ErrStepNotComplete, tc.amount)
		assert.ErrorIs(t, err, tc.cause, tc.amount)
	}

	require.NoError(t, s.EnterAmount(d("480"), ""))
	tr, err := s.Advance()
	require.NoError(t, err)
	assert.Contains(t, tr.Warnings, risk.WarningLiquidityUsage)
	assert.NotContains(t, tr.Warnings, risk.WarningModerateRisk)
}

func TestDepositWithoutAccountIsUnbounded(t *testing.T) {
	s, _ := newSession(t, FlowDeposit, "")
	require.NoError(t, s.SelectAsset("USDC"))
	_, err := s.Advance()
	require.NoError(t, err)
	require.NoError(t, s.EnterAmount(d("5000000"), ""))
	tr, err := s.Advance()
	require.NoError(t, err)
	assert.Empty(t, tr.Warnings)
}

func TestWithdrawBoundedByPoolLiquidity(t *testing.T) {
	s, _ := newSession(t, FlowWithdraw, "acct-1")
	require.NoError(t, s.SelectAsset("DAI"))
	_, err := s.Advance()
	require.NoError(t, err)
	require.NoError(t, s.EnterAmount(d("5001"), ""))
	_, err = s.Advance()
	assert.ErrorIs(t, err, risk.ErrExceedsAvailableLiquidity)
}

func TestLendFixedTermProjection(t *testing.T) {
	s, _ := newSession(t, FlowLend, "")
	require.NoError(t, s.SelectAsset("USDC"))
	_, err := s.Advance()
	require.NoError(t, err)
	require.NoError(t, s.EnterAmount(d("1000"), risk.DurationFixed30))

	dr, err := s.Risk()
	require.NoError(t, err)
	assert.True(t, dr.YearlyCost.Equal(d("85")))
	assert.Equal(t, "6.98630137", dr.Display().TermCost.String())
	assert.True(t, dr.HealthFactor.IsInf())
	assert.Equal(t, risk.DurationFixed30, s.Position().DurationClass)
}

func TestStepOwnedMutation(t *testing.T) {
	s, _ := newSession(t, FlowDeposit, "")
	assert.ErrorIs(t, s.EnterAmount(d("10"), ""), ErrStepNotActive)
	assert.ErrorIs(t, s.SelectCollateral("ETH", d("1")), ErrStepNotActive)
	assert.ErrorIs(t, s.SelectAsset("XYZ"), catalog.ErrPoolNotFound)

	_, err := s.StartAttestation(context.Background())
	assert.ErrorIs(t, err, ErrStepNotActive)
	_, err = s.Confirm(context.Background(), &recordingSubmitter{})
	assert.ErrorIs(t, err, ErrStepNotActive)

	require.NoError(t, s.SelectAsset("USDC"))
	_, err = s.Advance()
	require.NoError(t, err)
	assert.ErrorIs(t, s.EnterAmount(d("-1"), ""), risk.ErrInvalidQuantity)
}

func TestBackKeepsEnteredData(t *testing.T) {
	s, _ := newSession(t, FlowBorrow, "")
	_, err := s.Back()
	assert.ErrorIs(t, err, ErrNoPreviousStep)

	reachBorrowAmount(t, s)
	require.NoError(t, s.EnterAmount(d("1000"), risk.DurationFlexible))

	tr, err := s.Back()
	require.NoError(t, err)
	assert.Equal(t, StepSelectCollateral, tr.To)
	_, err = s.Advance()
	require.NoError(t, err)

	pos := s.Position()
	require.NotNil(t, pos.Principal)
	assert.True(t, pos.Principal.Quantity.Equal(d("1000")))
	assert.True(t, pos.Collateral.Quantity.Equal(d("5")))

	// 选择同一资产不清空数量
	_, err = s.Back()
	require.NoError(t, err)
	_, err = s.Back()
	require.NoError(t, err)
	require.NoError(t, s.SelectAsset("USDC"))
	assert.True(t, s.Position().Principal.Quantity.Equal(d("1000")))
	require.NoError(t, s.SelectAsset("DAI"))
	assert.True(t, s.Position().Principal.Quantity.IsZero())
}

func TestMutationAfterBackDiscardsAttestation(t *testing.T) {
	s, runner := newSession(t, FlowBorrow, "")
	reachBorrowAmount(t, s)
	require.NoError(t, s.EnterAmount(d("1000"), risk.DurationFlexible))
	_, err := s.Advance()
	require.NoError(t, err)
	attest(t, s)
	assert.Equal(t, attestation.StatusSucceeded, s.AttestationStatus())

	_, err = s.Back()
	require.NoError(t, err)
	// 未修改数据时重新前进，证明仍然有效
	_, err = s.Advance()
	require.NoError(t, err)
	require.NoError(t, s.CheckStep())

	_, err = s.Back()
	require.NoError(t, err)
	require.NoError(t, s.EnterAmount(d("2000"), risk.DurationFlexible))
	assert.Equal(t, attestation.StatusIdle, runner.Status(s.ID))

	_, err = s.Advance()
	require.NoError(t, err)
	_, err = s.Advance()
	assert.ErrorIs(t, err, ErrAttestationRequired)
}

func TestBackRefusedWhileAttestationRunning(t *testing.T) {
	release := make(chan struct{})
	runner := attestation.NewRunner(attestation.AttestorFunc(func(ctx context.Context, id string) (attestation.Proof, error) {
		<-release
		return attestation.Proof{SessionID: id}, nil
	}))
	snap := catalog.NewSnapshot("", testPools(), nil)
	s, err := NewSession("s-run", FlowLend, snap, risk.DefaultThresholds(), runner)
	require.NoError(t, err)

	require.NoError(t, s.SelectAsset("USDC"))
	_, err = s.Advance()
	require.NoError(t, err)
	require.NoError(t, s.EnterAmount(d("100"), ""))
	_, err = s.Advance()
	require.NoError(t, err)

	_, err = s.StartAttestation(context.Background())
	require.NoError(t, err)
	_, err = s.StartAttestation(context.Background())
	assert.ErrorIs(t, err, attestation.ErrAttestationAlreadyInProgress)

	_, err = s.Back()
	assert.ErrorIs(t, err, attestation.ErrAttestationAlreadyInProgress)
	_, err = s.Advance()
	requireNotComplete(t, err, ReasonAttestationRunning)

	require.NoError(t, s.Cancel(), "a session parked on attest stays cancellable")
	assert.Equal(t, attestation.StatusIdle, runner.Status(s.ID))

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Shutdown(ctx))
	assert.Equal(t, attestation.StatusIdle, runner.Status(s.ID))
}

func TestAttestationFailureThenRetry(t *testing.T) {
	calls := 0
	runner := attestation.NewRunner(attestation.AttestorFunc(func(ctx context.Context, id string) (attestation.Proof, error) {
		calls++
		if calls == 1 {
			return attestation.Proof{}, errors.New("verifier offline")
		}
		return attestation.Proof{SessionID: id}, nil
	}))
	snap := catalog.NewSnapshot("", testPools(), nil)
	s, err := NewSession("s-retry", FlowWithdraw, snap, risk.DefaultThresholds(), runner)
	require.NoError(t, err)
	require.NoError(t, s.SelectAsset("ETH"))
	_, err = s.Advance()
	require.NoError(t, err)
	require.NoError(t, s.EnterAmount(d("1"), ""))
	_, err = s.Advance()
	require.NoError(t, err)

	h, err := s.StartAttestation(context.Background())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = h.Wait(ctx)
	require.ErrorIs(t, err, attestation.ErrAttestationFailed)

	_, err = s.Advance()
	requireNotComplete(t, err, "attestation failed: verifier offline")
	assert.Equal(t, StepAttest, s.Step())

	attest(t, s)
	_, err = s.Advance()
	require.NoError(t, err)
}

func TestCancelClearsPosition(t *testing.T) {
	for _, flow := range []Flow{FlowDeposit, FlowWithdraw, FlowLend, FlowBorrow} {
		t.Run(string(flow), func(t *testing.T) {
			s, _ := newSession(t, flow, "")
			require.NoError(t, s.SelectAsset("USDC"))
			_, err := s.Advance()
			require.NoError(t, err)

			require.NoError(t, s.Cancel())
			assert.Equal(t, OutcomeCancelled, s.Outcome())
			assert.True(t, s.Position().IsEmpty())

			_, err = s.Advance()
			assert.ErrorIs(t, err, ErrSessionClosed)
			_, err = s.Back()
			assert.ErrorIs(t, err, ErrSessionClosed)
			assert.ErrorIs(t, s.Cancel(), ErrSessionClosed)
			assert.ErrorIs(t, s.SelectAsset("USDC"), ErrSessionClosed)
		})
	}
}

func TestConfirmSubmitFailureEndsSession(t *testing.T) {
	s, _ := newSession(t, FlowLend, "")
	require.NoError(t, s.SelectAsset("USDC"))
	_, err := s.Advance()
	require.NoError(t, err)
	require.NoError(t, s.EnterAmount(d("100"), ""))
	_, err = s.Advance()
	require.NoError(t, err)
	attest(t, s)
	_, err = s.Advance()
	require.NoError(t, err)

	_, err = s.Confirm(context.Background(), &recordingSubmitter{err: errors.New("broker down")})
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, s.Outcome())
	assert.Equal(t, "broker down", s.FailureReason())
	assert.Equal(t, StepConfirm, s.Step())

	_, err = s.Confirm(context.Background(), &recordingSubmitter{})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestHistoryRecordsTransitions(t *testing.T) {
	s, _ := newSession(t, FlowDeposit, "")
	require.NoError(t, s.SelectAsset("USDC"))
	_, err := s.Advance()
	require.NoError(t, err)
	_, err = s.Back()
	require.NoError(t, err)

	h := s.History()
	require.Len(t, h, 2)
	assert.Equal(t, "advance", h[0].Op)
	assert.Equal(t, "back", h[1].Op)
	assert.Equal(t, StepSelectAsset, h[1].To)
}

func TestParseFlow(t *testing.T) {
	f, err := ParseFlow(" borrow ")
	require.NoError(t, err)
	assert.Equal(t, FlowBorrow, f)
	assert.True(t, f.IsDebt())

	_, err = ParseFlow("stake")
	assert.ErrorIs(t, err, ErrUnknownFlow)

	_, err = NewSession("x", Flow("STAKE"), catalog.NewSnapshot("", nil, nil), risk.DefaultThresholds(), nil)
	assert.ErrorIs(t, err, ErrUnknownFlow)
}
