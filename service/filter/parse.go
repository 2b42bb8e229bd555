package filter

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// ErrMalformedFilter 过滤条件结构非法
var ErrMalformedFilter = errors.New("malformed filter")

// Parse 将规则中保存的过滤条件解析为表达式树
//
// 顶层多个键按字段名排序后以 And 组合；空条件匹配全部文档。
// 支持的操作符: $and $or $eq $gt $gte $lt $lte $in $exists
func Parse(raw map[string]interface{}) (Expr, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	exprs := make([]Expr, 0, len(keys))
	for _, key := range keys {
		expr, err := parseKey(key, raw[key])
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	if len(exprs) == 1 {
		return exprs[0], nil
	}
	return And{Exprs: exprs}, nil
}

// Validate 仅校验过滤条件是否可解析
func Validate(raw map[string]interface{}) error {
	_, err := Parse(raw)
	return err
}

func parseKey(key string, value interface{}) (Expr, error) {
	switch key {
	case "$and", "$or":
		subs, err := parseClauses(key, value)
		if err != nil {
			return nil, err
		}
		if key == "$and" {
			return And{Exprs: subs}, nil
		}
		return Or{Exprs: subs}, nil
	}
	if strings.HasPrefix(key, "$") {
		return nil, fmt.Errorf("%w: 不支持的顶层操作符 %s", ErrMalformedFilter, key)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: 字段名为空", ErrMalformedFilter)
	}

	ops, isMap := asMap(value)
	if !isMap || !hasOperatorKeys(ops) {
		return Equals{Field: key, Value: normalizeValue(value)}, nil
	}
	return parseOperators(key, ops)
}

func parseClauses(op string, value interface{}) ([]Expr, error) {
	items, ok := value.([]interface{})
	if !ok {
		if typed, okTyped := value.([]map[string]interface{}); okTyped {
			for _, m := range typed {
				items = append(items, m)
			}
			ok = true
		}
	}
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("%w: %s 需要非空数组", ErrMalformedFilter, op)
	}
	subs := make([]Expr, 0, len(items))
	for i, item := range items {
		m, isMap := asMap(item)
		if !isMap {
			return nil, fmt.Errorf("%w: %s[%d] 不是对象", ErrMalformedFilter, op, i)
		}
		sub, err := Parse(m)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func parseOperators(field string, ops map[string]interface{}) (Expr, error) {
	opKeys := make([]string, 0, len(ops))
	for k := range ops {
		opKeys = append(opKeys, k)
	}
	sort.Strings(opKeys)

	var exprs []Expr
	var rng *Range
	for _, op := range opKeys {
		operand := normalizeValue(ops[op])
		switch op {
		case "$eq":
			exprs = append(exprs, Equals{Field: field, Value: operand})
		case "$gt", "$gte", "$lt", "$lte":
			if operand == nil {
				return nil, fmt.Errorf("%w: %s.%s 边界为空", ErrMalformedFilter, field, op)
			}
			if rng == nil {
				rng = &Range{Field: field}
			}
			switch op {
			case "$gt":
				rng.Gt = operand
			case "$gte":
				rng.Gte = operand
			case "$lt":
				rng.Lt = operand
			case "$lte":
				rng.Lte = operand
			}
		case "$in":
			values, ok := operand.([]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: %s.$in 需要数组", ErrMalformedFilter, field)
			}
			exprs = append(exprs, In{Field: field, Values: values})
		case "$exists":
			want, err := cast.ToBoolE(operand)
			if err != nil {
				return nil, fmt.Errorf("%w: %s.$exists 需要布尔值", ErrMalformedFilter, field)
			}
			exprs = append(exprs, Exists{Field: field, Want: want})
		default:
			return nil, fmt.Errorf("%w: 不支持的操作符 %s", ErrMalformedFilter, op)
		}
	}
	if rng != nil {
		exprs = append(exprs, *rng)
	}
	if len(exprs) == 1 {
		return exprs[0], nil
	}
	return And{Exprs: exprs}, nil
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Document:
		return map[string]interface{}(m), true
	}
	return nil, false
}

func hasOperatorKeys(m map[string]interface{}) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

// normalizeValue 将各种切片统一为 []interface{}
func normalizeValue(v interface{}) interface{} {
	switch list := v.(type) {
	case []string:
		out := make([]interface{}, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	case []float64:
		out := make([]interface{}, len(list))
		for i, f := range list {
			out[i] = f
		}
		return out
	case []int:
		out := make([]interface{}, len(list))
		for i, n := range list {
			out[i] = n
		}
		return out
	}
	return v
}
