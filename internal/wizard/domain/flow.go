// Package domain 交易向导：四种流程共用一个带守卫条件的通用步骤状态机
package domain

import (
	"fmt"
	"strings"
)

// Flow 向导流程类型
type Flow string

const (
	FlowDeposit  Flow = "DEPOSIT"
	FlowWithdraw Flow = "WITHDRAW"
	FlowLend     Flow = "LEND"
	FlowBorrow   Flow = "BORROW"
)

// StepID 步骤标识
type StepID string

const (
	StepSelectAsset      StepID = "SELECT_ASSET"
	StepSelectCollateral StepID = "SELECT_COLLATERAL"
	StepEnterAmount      StepID = "ENTER_AMOUNT"
	StepAttest           StepID = "ATTEST"
	StepConfirm          StepID = "CONFIRM"
	StepDone             StepID = "DONE"
)

// ParseFlow 解析流程名，大小写不敏感
func ParseFlow(s string) (Flow, error) {
	switch f := Flow(strings.ToUpper(strings.TrimSpace(s))); f {
	case FlowDeposit, FlowWithdraw, FlowLend, FlowBorrow:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFlow, s)
	}
}

// IsDebt 流程操作的资产是否为债务
func (f Flow) IsDebt() bool { return f == FlowBorrow }

// Steps 流程的有序步骤，借款在选资产后插入选择抵押品
func (f Flow) Steps() []StepID {
	if f == FlowBorrow {
		return []StepID{StepSelectAsset, StepSelectCollateral, StepEnterAmount, StepAttest, StepConfirm, StepDone}
	}
	return []StepID{StepSelectAsset, StepEnterAmount, StepAttest, StepConfirm, StepDone}
}

// drawsFromPool 取款与借款受资金池可用流动性约束，存款与出借受钱包余额约束
func (f Flow) drawsFromPool() bool {
	return f == FlowWithdraw || f == FlowBorrow
}
