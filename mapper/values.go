package mapper

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one raw order as decoded from the transport. Keys may be camelCase or snake_case.
type Record map[string]any

// lookup resolves a field by its camelCase name first, then its snake_case name.
// The two spellings are never merged.
func (r Record) lookup(camel, snake string) (any, bool) {
	if v, ok := r[camel]; ok && v != nil {
		return v, true
	}
	if snake != camel {
		if v, ok := r[snake]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (r Record) str(camel, snake string) string {
	v, ok := r.lookup(camel, snake)
	if !ok {
		return ""
	}
	return toString(v)
}

func (r Record) dec(camel, snake string) decimal.NullDecimal {
	v, ok := r.lookup(camel, snake)
	if !ok {
		return decimal.NullDecimal{}
	}
	return toDecimal(v)
}

func (r Record) time(camel, snake string) *time.Time {
	v, ok := r.lookup(camel, snake)
	if !ok {
		return nil
	}
	return toTime(v)
}

func (r Record) bool(camel, snake string) bool {
	v, ok := r.lookup(camel, snake)
	if !ok {
		return false
	}
	return toBool(v)
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case fmtStringer:
		return x.String()
	}
	return ""
}

type fmtStringer interface{ String() string }

// canonical strips trailing zeros so equal amounts have one representation
func canonical(d decimal.Decimal) decimal.NullDecimal {
	c, err := decimal.NewFromString(d.String())
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(c)
}

func toDecimal(v any) decimal.NullDecimal {
	switch x := v.(type) {
	case decimal.Decimal:
		return canonical(x)
	case decimal.NullDecimal:
		if !x.Valid {
			return decimal.NullDecimal{}
		}
		return canonical(x.Decimal)
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.NullDecimal{}
		}
		return canonical(d)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return decimal.NullDecimal{}
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.NullDecimal{}
		}
		return canonical(d)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.NullDecimal{}
		}
		return canonical(decimal.NewFromFloat(x))
	case int:
		return canonical(decimal.NewFromInt(int64(x)))
	case int64:
		return canonical(decimal.NewFromInt(x))
	}
	return decimal.NullDecimal{}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// toTime parses v as a timestamp in UTC. Numbers are epoch milliseconds.
func toTime(v any) *time.Time {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case *time.Time:
		if x == nil {
			return nil
		}
		t = *x
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		parsed, ok := parseTime(s)
		if !ok {
			return nil
		}
		t = parsed
	case json.Number:
		ms, err := x.Int64()
		if err != nil {
			return nil
		}
		t = time.UnixMilli(ms)
	case float64:
		t = time.UnixMilli(int64(x))
	case int64:
		t = time.UnixMilli(x)
	default:
		return nil
	}
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return err == nil && b
	case json.Number:
		n, err := x.Int64()
		return err == nil && n != 0
	case float64:
		return x != 0
	case int:
		return x != 0
	}
	return false
}
