package filter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ControlFilters(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]interface{}
		doc     Document
		matches bool
	}{
		{
			name:    "现金大额命中",
			raw:     map[string]interface{}{"transaction_type": "CASH", "amount": map[string]interface{}{"$gte": 1000000}},
			doc:     Document{"transaction_type": "CASH", "amount": 1500000.0},
			matches: true,
		},
		{
			name:    "现金金额不足",
			raw:     map[string]interface{}{"transaction_type": "CASH", "amount": map[string]interface{}{"$gte": 1000000}},
			doc:     Document{"transaction_type": "CASH", "amount": 999999.99},
			matches: false,
		},
		{
			name:    "拆分区间左闭右开",
			raw:     map[string]interface{}{"amount": map[string]interface{}{"$gte": 900000, "$lt": 1000000}},
			doc:     Document{"amount": 1000000},
			matches: false,
		},
		{
			name:    "国家在制裁名单",
			raw:     map[string]interface{}{"country": map[string]interface{}{"$in": []interface{}{"IR", "KP"}}},
			doc:     Document{"country": "KP"},
			matches: true,
		},
		{
			name:    "字段存在",
			raw:     map[string]interface{}{"salary_amount": map[string]interface{}{"$exists": true}},
			doc:     Document{"salary_amount": nil},
			matches: true,
		},
		{
			name:    "字段不存在",
			raw:     map[string]interface{}{"salary_amount": map[string]interface{}{"$exists": true}},
			doc:     Document{"employee_id": "E1"},
			matches: false,
		},
		{
			name: "或条件",
			raw: map[string]interface{}{"$or": []interface{}{
				map[string]interface{}{"status": "FROZEN"},
				map[string]interface{}{"risk_score": map[string]interface{}{"$gte": 70}},
			}},
			doc:     Document{"status": "ACTIVE", "risk_score": 85},
			matches: true,
		},
		{
			name:    "嵌套字段",
			raw:     map[string]interface{}{"party.country": "IR"},
			doc:     Document{"party": map[string]interface{}{"country": "IR"}},
			matches: true,
		},
		{
			name:    "字符串与数值不可比较",
			raw:     map[string]interface{}{"amount": map[string]interface{}{"$gt": 100}},
			doc:     Document{"amount": "250.5"},
			matches: false,
		},
		{
			name:    "空条件匹配全部",
			raw:     map[string]interface{}{},
			doc:     Document{"anything": 1},
			matches: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.matches, expr.Match(tt.doc))
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]interface{}
	}{
		{"未知字段操作符", map[string]interface{}{"amount": map[string]interface{}{"$regex": "^1"}}},
		{"未知顶层操作符", map[string]interface{}{"$where": "1"}},
		{"in 非数组", map[string]interface{}{"country": map[string]interface{}{"$in": "IR"}}},
		{"exists 非布尔", map[string]interface{}{"x": map[string]interface{}{"$exists": "maybe"}}},
		{"and 为空", map[string]interface{}{"$and": []interface{}{}}},
		{"or 元素非对象", map[string]interface{}{"$or": []interface{}{"a"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedFilter))
		})
	}
}

func TestParse_RangeMergesBounds(t *testing.T) {
	expr, err := Parse(map[string]interface{}{"amount": map[string]interface{}{"$gte": 10, "$lte": 20}})
	require.NoError(t, err)

	rng, ok := expr.(Range)
	require.True(t, ok)
	assert.Equal(t, "amount", rng.Field)
	assert.Equal(t, 10, rng.Gte)
	assert.Equal(t, 20, rng.Lte)
	assert.Nil(t, rng.Gt)
}

func TestRange_TimeBounds(t *testing.T) {
	cutoff := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	expr := Range{Field: "timestamp", Gte: cutoff}

	assert.True(t, expr.Match(Document{"timestamp": cutoff.Add(time.Hour)}))
	assert.True(t, expr.Match(Document{"timestamp": "2026-10-02T00:00:00Z"}))
	assert.False(t, expr.Match(Document{"timestamp": cutoff.Add(-time.Second)}))
	assert.False(t, expr.Match(Document{"timestamp": "not-a-time"}))
}

func TestEquals_BoolAndArray(t *testing.T) {
	assert.True(t, Equals{Field: "pep", Value: true}.Match(Document{"pep": true}))
	assert.False(t, Equals{Field: "pep", Value: true}.Match(Document{"pep": 1}))
	assert.True(t, Equals{Field: "tags", Value: "aml"}.Match(Document{"tags": []interface{}{"kyc", "aml"}}))
}

func TestCompare_StringsStayStrings(t *testing.T) {
	doc := Document{"employee_id": "007", "code": "1e3", "rank": "10"}

	assert.False(t, Equals{Field: "employee_id", Value: "7"}.Match(doc))
	assert.True(t, Equals{Field: "employee_id", Value: "007"}.Match(doc))
	assert.False(t, Equals{Field: "code", Value: "1000"}.Match(doc))
	assert.False(t, In{Field: "employee_id", Values: []interface{}{"7", "8"}}.Match(doc))
	assert.True(t, In{Field: "employee_id", Values: []interface{}{"007", "8"}}.Match(doc))

	// 字符串与数值混合不可比较
	assert.False(t, Equals{Field: "employee_id", Value: 7}.Match(doc))
	assert.False(t, Range{Field: "rank", Gte: 1}.Match(doc))

	// 字符串区间按字典序
	assert.True(t, Range{Field: "rank", Lt: "9"}.Match(doc))
	assert.False(t, Range{Field: "rank", Gt: "9"}.Match(doc))
}

func TestCompare_NumericTypes(t *testing.T) {
	doc := Document{"amount": 1500.0, "count": int64(3)}

	assert.True(t, Equals{Field: "amount", Value: 1500}.Match(doc))
	assert.True(t, Equals{Field: "count", Value: 3.0}.Match(doc))
	assert.True(t, Range{Field: "amount", Gte: uint(1000), Lt: float32(2000)}.Match(doc))
	assert.True(t, In{Field: "count", Values: []interface{}{1, 3}}.Match(doc))
}

func TestConjoinAndPushdown(t *testing.T) {
	rule, err := Parse(map[string]interface{}{
		"transaction_type": "CASH",
		"amount":           map[string]interface{}{"$gte": 100},
		"party.country":    "IR",
	})
	require.NoError(t, err)

	scoped := Conjoin(rule, Equals{Field: "tenant_id", Value: "t1"})
	and, ok := scoped.(And)
	require.True(t, ok)
	assert.Len(t, and.Exprs, 4)

	pushed := EqualityConjuncts(scoped)
	assert.Equal(t, map[string]interface{}{"transaction_type": "CASH", "tenant_id": "t1"}, pushed)
	assert.ElementsMatch(t, []string{"amount", "party.country", "transaction_type", "tenant_id"}, Fields(scoped))
}
