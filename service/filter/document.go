package filter

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Document 扫描期间的文档视图
type Document map[string]interface{}

// Lookup 按点路径读取字段，例如 "party.country"
func (d Document) Lookup(path string) (interface{}, bool) {
	if d == nil {
		return nil, false
	}
	if v, ok := d[path]; ok {
		return v, true
	}
	parts := strings.Split(path, ".")
	var current interface{} = map[string]interface{}(d)
	for _, part := range parts {
		var next interface{}
		var ok bool
		switch node := current.(type) {
		case map[string]interface{}:
			next, ok = node[part]
		case Document:
			next, ok = node[part]
		default:
			return nil, false
		}
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// ID 返回文档标识的字符串形式，依次尝试 id 与 _id
func (d Document) ID() string {
	for _, key := range []string{"id", "_id"} {
		if v, ok := d[key]; ok && v != nil {
			return cast.ToString(v)
		}
	}
	return ""
}

// compare 比较两个标量值，返回 (-1|0|1, 是否可比较)
// 时间与时间或时间字符串比较；数值仅与数值比较；字符串按字典序比较，不做数值解析
func compare(a, b interface{}) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if isBool(a) || isBool(b) {
		return 0, false
	}

	_, aIsTime := a.(time.Time)
	_, bIsTime := b.(time.Time)
	if aIsTime || bIsTime {
		ta, errA := cast.ToTimeE(a)
		tb, errB := cast.ToTimeE(b)
		if errA != nil || errB != nil {
			return 0, false
		}
		return ta.Compare(tb), true
	}

	fa, okA := toNumber(a)
	fb, okB := toNumber(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	if okA || okB {
		return 0, false
	}

	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

// toNumber 仅接受数值类型，字符串不会被当作数字
func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return cast.ToFloat64(n), true
	case decimal.Decimal:
		return n.InexactFloat64(), true
	default:
		return 0, false
	}
}

// equalValues 判断两个值是否相等
func equalValues(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isBool(a) || isBool(b) {
		ba, okA := a.(bool)
		bb, okB := b.(bool)
		return okA && okB && ba == bb
	}
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return false
}

func isBool(v interface{}) bool {
	_, ok := v.(bool)
	return ok
}
