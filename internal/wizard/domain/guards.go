package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	attestation "github.com/wyfcoding/defiwizard/internal/attestation/domain"
	catalog "github.com/wyfcoding/defiwizard/internal/catalog/domain"
	risk "github.com/wyfcoding/defiwizard/internal/risk/domain"
)

const (
	ReasonNoAsset            = "no asset selected"
	ReasonNoCollateral       = "no collateral selected"
	ReasonCollateralDisabled = "asset cannot be used as collateral"
	ReasonSameAsset          = "collateral must differ from borrowed asset"
	ReasonNoCollateralAmount = "collateral amount must be positive"
	ReasonCollateralBalance  = "collateral exceeds wallet balance"
	ReasonExceedsMaxBorrow   = "exceeds maximum borrow"
	ReasonAttestationRunning = "attestation in progress"
)

var machines = map[Flow]*Machine[*Session]{}

func init() {
	guards := map[StepID]Guard[*Session]{
		StepSelectAsset:      guardAsset,
		StepSelectCollateral: guardCollateral,
		StepEnterAmount:      guardAmount,
		StepAttest:           guardAttestation,
	}
	for _, f := range []Flow{FlowDeposit, FlowWithdraw, FlowLend, FlowBorrow} {
		fg := make(map[StepID]Guard[*Session])
		for _, s := range f.Steps() {
			if g, ok := guards[s]; ok {
				fg[s] = g
			}
		}
		m, err := NewMachine(f.Steps(), fg)
		if err != nil {
			panic(fmt.Sprintf("wizard: build %s machine: %v", f, err))
		}
		machines[f] = m
	}
}

func guardAsset(s *Session) error {
	p := s.position.Principal
	if p == nil || p.AssetID == "" {
		return notComplete(ReasonNoAsset, nil)
	}
	if _, err := s.snapshot.Pool(p.AssetID); err != nil {
		return notComplete(err.Error(), err)
	}
	return nil
}

func guardCollateral(s *Session) error {
	c := s.position.Collateral
	if c == nil {
		return notComplete(ReasonNoCollateral, nil)
	}
	pool, err := s.snapshot.Pool(c.AssetID)
	if err != nil {
		return notComplete(err.Error(), err)
	}
	if !pool.CollateralEnabled {
		return notComplete(ReasonCollateralDisabled, nil)
	}
	if p := s.position.Principal; p != nil && p.AssetID == c.AssetID {
		return notComplete(ReasonSameAsset, nil)
	}
	if !c.Quantity.IsPositive() {
		return notComplete(ReasonNoCollateralAmount, risk.ErrNonPositiveAmount)
	}
	if s.snapshot.AccountID != "" && c.Quantity.GreaterThan(s.snapshot.Balance(c.AssetID)) {
		return notComplete(ReasonCollateralBalance, risk.ErrExceedsAvailableLiquidity)
	}
	return nil
}

func guardAmount(s *Session) error {
	p := s.position.Principal
	if p == nil {
		return notComplete(ReasonNoAsset, nil)
	}
	pool, err := s.snapshot.Pool(p.AssetID)
	if err != nil {
		return notComplete(err.Error(), err)
	}
	available, bounded := s.available(pool)
	if !bounded {
		available = p.Quantity
	}
	if err := risk.ValidateOperationAmount(p.Quantity, pool.RiskParameters(), available); err != nil {
		return notComplete(amountReason(err), err)
	}
	if !s.Flow.IsDebt() {
		return nil
	}

	if s.position.Collateral == nil {
		return notComplete(ReasonNoCollateral, nil)
	}
	collateralPool, err := s.snapshot.Pool(s.position.Collateral.AssetID)
	if err != nil {
		return notComplete(err.Error(), err)
	}
	dr, err := s.Risk()
	if errors.Is(err, risk.ErrUndercollateralized) {
		return notComplete(ReasonExceedsMaxBorrow, err)
	}
	if err != nil {
		return notComplete(err.Error(), err)
	}
	if !dr.CurrentLTVPct.LessThanOrEqual(collateralPool.LoanToValueMaxPct) {
		return notComplete(ReasonExceedsMaxBorrow, risk.ErrUndercollateralized)
	}
	if dr.HealthFactor.LessThan(s.thresholds.MinHealthFactor) {
		return notComplete(fmt.Sprintf("health factor below %s", s.thresholds.MinHealthFactor), risk.ErrUndercollateralized)
	}
	return nil
}

func guardAttestation(s *Session) error {
	switch st := s.gate.Status(s.ID); st {
	case attestation.StatusSucceeded:
		return nil
	case attestation.StatusRunning:
		return notComplete(ReasonAttestationRunning, ErrAttestationRequired)
	case attestation.StatusFailed:
		reason := "attestation failed"
		if res, ok := s.gate.Result(s.ID); ok && res.Reason != "" {
			reason = "attestation failed: " + res.Reason
		}
		return notComplete(reason, ErrAttestationRequired)
	default:
		return notComplete("attestation not started", ErrAttestationRequired)
	}
}

func amountReason(err error) string {
	for _, sentinel := range []error{risk.ErrNonPositiveAmount, risk.ErrBelowMinimum, risk.ErrExceedsAvailableLiquidity} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

// available 本流程可用额度；未绑定账户的存款/出借不受钱包余额约束
func (s *Session) available(pool catalog.Pool) (decimal.Decimal, bool) {
	if s.Flow.drawsFromPool() {
		return pool.AvailableLiquidity, true
	}
	if s.snapshot.AccountID == "" {
		return decimal.Zero, false
	}
	return s.snapshot.Balance(pool.AssetID), true
}
