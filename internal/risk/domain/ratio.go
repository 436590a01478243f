package domain

import (
	"github.com/shopspring/decimal"
)

// Ratio 可能为正无穷的比值（零债务的健康因子、零抵押的 LTV）
// decimal 本身无法表示无穷，退化情况由 infinite 标记，绝不静默截断
type Ratio struct {
	value    decimal.Decimal
	infinite bool
}

// Infinity 正无穷
var Infinity = Ratio{infinite: true}

// Finite 构造有限比值
func Finite(v decimal.Decimal) Ratio {
	return Ratio{value: v}
}

func (r Ratio) IsInf() bool { return r.infinite }

// Decimal 返回有限值；无穷时返回 false
func (r Ratio) Decimal() (decimal.Decimal, bool) {
	if r.infinite {
		return decimal.Zero, false
	}
	return r.value, true
}

// Cmp 与有限值比较，无穷永远更大
func (r Ratio) Cmp(d decimal.Decimal) int {
	if r.infinite {
		return 1
	}
	return r.value.Cmp(d)
}

func (r Ratio) LessThan(d decimal.Decimal) bool { return r.Cmp(d) < 0 }

func (r Ratio) LessThanOrEqual(d decimal.Decimal) bool { return r.Cmp(d) <= 0 }

func (r Ratio) GreaterThanOrEqual(d decimal.Decimal) bool { return r.Cmp(d) >= 0 }

// Round 仅用于展示，分级判断必须使用未舍入的值
func (r Ratio) Round(places int32) Ratio {
	if r.infinite {
		return r
	}
	return Finite(r.value.Round(places))
}

func (r Ratio) String() string {
	if r.infinite {
		return "Infinity"
	}
	return r.value.String()
}

// MarshalJSON 无穷序列化为 "Infinity"，有限值沿用 decimal 的字符串格式
func (r Ratio) MarshalJSON() ([]byte, error) {
	if r.infinite {
		return []byte(`"Infinity"`), nil
	}
	return r.value.MarshalJSON()
}

// UnmarshalJSON 接受 "Infinity" 或 decimal 格式
func (r *Ratio) UnmarshalJSON(data []byte) error {
	if string(data) == `"Infinity"` {
		*r = Infinity
		return nil
	}
	var v decimal.Decimal
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	*r = Finite(v)
	return nil
}
