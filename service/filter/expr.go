/*
 * @module service/filter/expr
 * @description 规则过滤表达式树，提供 Equals/Range/In/Exists/And/Or 六种节点及其对文档的求值
 * @architecture 分层架构 - 领域模型层
 * @documentReference DESIGN.md
 * @stateFlow 规则过滤条件解析 -> 表达式树 -> 逐文档求值
 * @rules 只校验结构合法性，不校验字段是否存在于目标集合
 * @dependencies github.com/spf13/cast
 * @refs service/filter/parse.go, service/scan/evaluator.go
 */

package filter

import (
	"strings"
)

// Kind 表达式节点类型
type Kind string

const (
	KindEquals Kind = "eq"
	KindRange  Kind = "range"
	KindIn     Kind = "in"
	KindExists Kind = "exists"
	KindAnd    Kind = "and"
	KindOr     Kind = "or"
)

// Expr 过滤表达式节点
type Expr interface {
	Kind() Kind
	Match(doc Document) bool
}

// Equals 字段等值匹配；字段为数组时任一元素相等即匹配
type Equals struct {
	Field string
	Value interface{}
}

// Range 字段区间匹配，nil 边界表示不限制
type Range struct {
	Field string
	Gt    interface{}
	Gte   interface{}
	Lt    interface{}
	Lte   interface{}
}

// In 字段集合成员匹配
type In struct {
	Field  string
	Values []interface{}
}

// Exists 字段存在性匹配
type Exists struct {
	Field string
	Want  bool
}

// And 逻辑与，空列表恒为真
type And struct {
	Exprs []Expr
}

// Or 逻辑或，空列表恒为假
type Or struct {
	Exprs []Expr
}

func (Equals) Kind() Kind { return KindEquals }
func (Range) Kind() Kind  { return KindRange }
func (In) Kind() Kind     { return KindIn }
func (Exists) Kind() Kind { return KindExists }
func (And) Kind() Kind    { return KindAnd }
func (Or) Kind() Kind     { return KindOr }

// Match 等值求值
func (e Equals) Match(doc Document) bool {
	v, ok := doc.Lookup(e.Field)
	if !ok {
		return false
	}
	if items, isList := v.([]interface{}); isList {
		for _, item := range items {
			if equalValues(item, e.Value) {
				return true
			}
		}
		return false
	}
	return equalValues(v, e.Value)
}

// Match 区间求值，任一边界不可比较时视为不匹配
func (e Range) Match(doc Document) bool {
	v, ok := doc.Lookup(e.Field)
	if !ok || v == nil {
		return false
	}
	if e.Gt != nil {
		if c, ok := compare(v, e.Gt); !ok || c <= 0 {
			return false
		}
	}
	if e.Gte != nil {
		if c, ok := compare(v, e.Gte); !ok || c < 0 {
			return false
		}
	}
	if e.Lt != nil {
		if c, ok := compare(v, e.Lt); !ok || c >= 0 {
			return false
		}
	}
	if e.Lte != nil {
		if c, ok := compare(v, e.Lte); !ok || c > 0 {
			return false
		}
	}
	return true
}

// Match 集合成员求值
func (e In) Match(doc Document) bool {
	v, ok := doc.Lookup(e.Field)
	if !ok {
		return false
	}
	for _, candidate := range e.Values {
		if (Equals{Field: e.Field, Value: candidate}).Match(Document{e.Field: v}) {
			return true
		}
	}
	return false
}

// Match 存在性求值
func (e Exists) Match(doc Document) bool {
	_, ok := doc.Lookup(e.Field)
	return ok == e.Want
}

// Match 逻辑与求值
func (e And) Match(doc Document) bool {
	for _, sub := range e.Exprs {
		if !sub.Match(doc) {
			return false
		}
	}
	return true
}

// Match 逻辑或求值
func (e Or) Match(doc Document) bool {
	for _, sub := range e.Exprs {
		if sub.Match(doc) {
			return true
		}
	}
	return false
}

// Conjoin 将多个表达式合并为一个 And，嵌套的 And 会被展开
func Conjoin(exprs ...Expr) Expr {
	flat := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if and, ok := e.(And); ok {
			flat = append(flat, and.Exprs...)
			continue
		}
		flat = append(flat, e)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return And{Exprs: flat}
}

// EqualityConjuncts 返回表达式顶层 And 中的等值条件，供存储层下推查询
func EqualityConjuncts(e Expr) map[string]interface{} {
	out := make(map[string]interface{})
	switch node := e.(type) {
	case Equals:
		if rootField(node.Field) == node.Field {
			out[node.Field] = node.Value
		}
	case And:
		for _, sub := range node.Exprs {
			if eq, ok := sub.(Equals); ok && rootField(eq.Field) == eq.Field {
				if _, isList := eq.Value.([]interface{}); !isList {
					out[eq.Field] = eq.Value
				}
			}
		}
	}
	return out
}

// Fields 返回表达式引用的全部字段（去重，按出现顺序）
func Fields(e Expr) []string {
	seen := make(map[string]bool)
	var fields []string
	var walk func(Expr)
	walk = func(node Expr) {
		var field string
		switch n := node.(type) {
		case Equals:
			field = n.Field
		case Range:
			field = n.Field
		case In:
			field = n.Field
		case Exists:
			field = n.Field
		case And:
			for _, sub := range n.Exprs {
				walk(sub)
			}
		case Or:
			for _, sub := range n.Exprs {
				walk(sub)
			}
		}
		if field != "" && !seen[field] {
			seen[field] = true
			fields = append(fields, field)
		}
	}
	walk(e)
	return fields
}

// rootField 返回点路径的首段字段名
func rootField(path string) string {
	if idx := strings.IndexByte(path, '.'); idx >= 0 {
		return path[:idx]
	}
	return path
}
