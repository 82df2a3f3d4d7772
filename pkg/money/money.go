package money

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmpty       = errors.New("amount is empty")
	ErrInvalid     = errors.New("amount is not a number")
	ErrNotPositive = errors.New("amount must be greater than 0")
	ErrTooPrecise  = errors.New("amount has more than 2 decimal places")
	ErrTooLarge    = errors.New("amount exceeds 13 integer digits")
)

// 金额列为 decimal(15,2)
const (
	MaxScale         = 2
	MaxIntegerDigits = 13
)

var plainNumber = regexp.MustCompile(`^-?(\d+)(?:\.(\d+))?$`)

// 印尼写法：点分千位、逗号小数，例如 1.250.000,50
var idGrouped = regexp.MustCompile(`^\d{1,3}(\.\d{3})+(,\d+)?$`)

// ParseAmount 解析金额字符串。
//
// 支持的写法：
//   - 纯数字：1000000、1000000.50
//   - 逗号千分位：1,000,000 / 1,000,000.50
//   - 印尼写法：1.000.000 / 1.000.000,50（至少两组点分，或带逗号小数）
//   - 可带 "Rp" 前缀与空格
//
// 单个点分一组（如 1.500）按小数处理。不接受科学计数法，
// 小数超过 2 位或整数超过 13 位的金额无法存入 decimal(15,2)，直接拒绝。
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "Rp"), "rp")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, ErrEmpty
	}

	if idGrouped.MatchString(s) && (strings.Count(s, ".") > 1 || strings.Contains(s, ",")) {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	m := plainNumber.FindStringSubmatch(s)
	if m == nil {
		return decimal.Zero, ErrInvalid
	}
	if len(m[2]) > MaxScale {
		return decimal.Zero, ErrTooPrecise
	}
	if len(strings.TrimLeft(m[1], "0")) > MaxIntegerDigits {
		return decimal.Zero, ErrTooLarge
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalid
	}
	return d, nil
}

// ParsePositive 解析金额并要求大于 0
func ParsePositive(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return d, err
	}
	if !d.IsPositive() {
		return d, ErrNotPositive
	}
	return d, nil
}

// Format 按印尼习惯格式化金额：Rp 1.250.000,50
func Format(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-2:]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := "Rp " + b.String()
	if frac != "00" {
		out += "," + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// Input 请求中的金额字段，JSON 里既可以是数字也可以是字符串
type Input string

func (i *Input) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*i = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*i = Input(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*i = Input(n.String())
	return nil
}

func (i Input) String() string {
	return string(i)
}
