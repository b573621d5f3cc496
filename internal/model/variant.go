package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type VariantKind string

const (
	VariantNone   VariantKind = ""
	VariantScalar VariantKind = "scalar"
	VariantSet    VariantKind = "set"
)

// Variant 是答案值的显式标签联合：单值、集合或空。
// 在评分边界按题型解析一次，之后不再做类型探测。
type Variant struct {
	Kind   VariantKind
	Scalar string
	Set    []string
}

func ScalarOf(s string) Variant {
	return Variant{Kind: VariantScalar, Scalar: strings.TrimSpace(s)}
}

// SetOf 去重并排序，集合比较与提交顺序无关
func SetOf(items ...string) Variant {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	sort.Strings(out)
	return Variant{Kind: VariantSet, Set: out}
}

func (v Variant) IsZero() bool {
	return v.Kind == VariantNone
}

// Equal 要求两边同为单值或同为集合
func (v Variant) Equal(o Variant) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case VariantScalar:
		return v.Scalar == o.Scalar
	case VariantSet:
		if len(v.Set) != len(o.Set) {
			return false
		}
		for i := range v.Set {
			if v.Set[i] != o.Set[i] {
				return false
			}
		}
		return true
	}
	return false
}

func (v Variant) String() string {
	switch v.Kind {
	case VariantScalar:
		return v.Scalar
	case VariantSet:
		return "[" + strings.Join(v.Set, ",") + "]"
	}
	return ""
}

func (v Variant) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case VariantScalar:
		return json.Marshal(v.Scalar)
	case VariantSet:
		if v.Set == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Set)
	}
	return []byte("null"), nil
}

// UnmarshalJSON 不区分题型，只做结构上的解析；题型相关的归一化见 ResolveVariant
func (v *Variant) UnmarshalJSON(data []byte) error {
	raw, err := decodeLoose(data)
	if err != nil {
		return err
	}
	*v = fromLoose(raw)
	return nil
}

func (v Variant) Value() (driver.Value, error) {
	b, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (v *Variant) Scan(src interface{}) error {
	var data []byte
	switch s := src.(type) {
	case nil:
		*v = Variant{}
		return nil
	case []byte:
		data = s
	case string:
		data = []byte(s)
	default:
		return fmt.Errorf("variant: unsupported scan type %T", src)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		*v = Variant{}
		return nil
	}
	return v.UnmarshalJSON(data)
}

func (Variant) GormDataType() string {
	return "json"
}

// ResolveVariant 把客户端提交的任意 JSON 值按题型归一化。
// 无法识别的值返回空 Variant，评分时按未作答处理。
func ResolveVariant(qt QuestionType, data json.RawMessage) Variant {
	if len(bytes.TrimSpace(data)) == 0 {
		return Variant{}
	}
	raw, err := decodeLoose(data)
	if err != nil {
		return Variant{}
	}
	return NormalizeVariant(qt, fromLoose(raw))
}

// NormalizeVariant 对已解析的值做题型相关的归一化（答案键与提交值都要经过这里）
func NormalizeVariant(qt QuestionType, v Variant) Variant {
	switch qt {
	case MultiSelect:
		switch v.Kind {
		case VariantSet:
			return SetOf(v.Set...)
		case VariantScalar:
			// 单个字符串视为只选一项；选项文本可能含逗号，不拆分
			return SetOf(v.Scalar)
		}
		return Variant{}
	case Boolean:
		s, ok := v.single()
		if !ok {
			return Variant{}
		}
		if b, err := strconv.ParseBool(strings.ToLower(s)); err == nil {
			return ScalarOf(strconv.FormatBool(b))
		}
		return ScalarOf(s)
	case SingleChoice:
		if s, ok := v.single(); ok {
			return ScalarOf(s)
		}
		return v
	}
	return v
}

func (v Variant) single() (string, bool) {
	switch v.Kind {
	case VariantScalar:
		return v.Scalar, true
	case VariantSet:
		if len(v.Set) == 1 {
			return v.Set[0], true
		}
	}
	return "", false
}

func decodeLoose(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func fromLoose(raw interface{}) Variant {
	switch x := raw.(type) {
	case nil:
		return Variant{}
	case []interface{}:
		items := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := scalarString(e); ok {
				items = append(items, s)
			}
		}
		set := SetOf(items...)
		if len(set.Set) == 0 {
			return Variant{}
		}
		return set
	default:
		if s, ok := scalarString(x); ok && strings.TrimSpace(s) != "" {
			return ScalarOf(s)
		}
	}
	return Variant{}
}

func scalarString(raw interface{}) (string, bool) {
	switch x := raw.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	}
	return "", false
}
