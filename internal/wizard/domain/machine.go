package domain

import (
	"errors"
	"fmt"
)

// Guard 步骤完成条件，返回 nil 表示可以前进
type Guard[C any] func(C) error

// Machine 通用有序步骤状态机，C 为守卫读取的上下文
// 最后一个步骤为终态
type Machine[C any] struct {
	steps  []StepID
	index  map[StepID]int
	guards map[StepID]Guard[C]
}

// NewMachine 步骤列表至少两个且不可重复；未配置守卫的步骤视为恒可前进
func NewMachine[C any](steps []StepID, guards map[StepID]Guard[C]) (*Machine[C], error) {
	if len(steps) < 2 {
		return nil, fmt.Errorf("%w: need at least two steps", ErrInvalidSteps)
	}
	m := &Machine[C]{
		steps:  append([]StepID(nil), steps...),
		index:  make(map[StepID]int, len(steps)),
		guards: make(map[StepID]Guard[C], len(guards)),
	}
	for i, s := range steps {
		if _, dup := m.index[s]; dup {
			return nil, fmt.Errorf("%w: duplicate step %s", ErrInvalidSteps, s)
		}
		m.index[s] = i
	}
	for s, g := range guards {
		if _, ok := m.index[s]; !ok {
			return nil, fmt.Errorf("%w: guard for unknown step %s", ErrInvalidSteps, s)
		}
		m.guards[s] = g
	}
	return m, nil
}

// Steps 步骤列表副本
func (m *Machine[C]) Steps() []StepID {
	return append([]StepID(nil), m.steps...)
}

// Initial 初始步骤
func (m *Machine[C]) Initial() StepID { return m.steps[0] }

// IsFinal 是否为终态步骤
func (m *Machine[C]) IsFinal(step StepID) bool { return step == m.steps[len(m.steps)-1] }

// Check 仅评估守卫，不产生迁移
func (m *Machine[C]) Check(c C, step StepID) error {
	if _, ok := m.index[step]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStep, step)
	}
	g, ok := m.guards[step]
	if !ok {
		return nil
	}
	if err := g(c); err != nil {
		return asStepNotComplete(step, err)
	}
	return nil
}

// Next 守卫通过时返回下一步骤，否则返回 *StepNotCompleteError
func (m *Machine[C]) Next(c C, from StepID) (StepID, error) {
	i, ok := m.index[from]
	if !ok {
		return from, fmt.Errorf("%w: %s", ErrUnknownStep, from)
	}
	if i == len(m.steps)-1 {
		return from, fmt.Errorf("%w: %s is final", ErrNoNextStep, from)
	}
	if err := m.Check(c, from); err != nil {
		return from, err
	}
	return m.steps[i+1], nil
}

// Prev 上一步骤，初始步骤返回 ErrNoPreviousStep
func (m *Machine[C]) Prev(from StepID) (StepID, error) {
	i, ok := m.index[from]
	if !ok {
		return from, fmt.Errorf("%w: %s", ErrUnknownStep, from)
	}
	if i == 0 {
		return from, fmt.Errorf("%w: %s is the first step", ErrNoPreviousStep, from)
	}
	return m.steps[i-1], nil
}

func asStepNotComplete(step StepID, err error) error {
	var snc *StepNotCompleteError
	if errors.As(err, &snc) {
		if snc.Step == "" {
			snc.Step = step
		}
		return snc
	}
	return &StepNotCompleteError{Step: step, Reason: err.Error(), Cause: err}
}
