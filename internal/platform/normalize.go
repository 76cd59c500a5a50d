package platform

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const dateLayout = "2006-01-02"

// lookup walks nested JSON objects along path.
func lookup(item RawItem, path ...string) (interface{}, bool) {
	var cur interface{} = item
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// int64Field reads a counter that platforms send either as a JSON number or
// as a decimal string. Missing fields are zero.
func int64Field(item RawItem, path ...string) (int64, error) {
	v, ok := lookup(item, path...)
	if !ok || v == nil {
		return 0, nil
	}
	if s, isStr := v.(string); isStr && strings.Contains(s, ".") {
		f, err := cast.ToFloat64E(s)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", strings.Join(path, "."), err)
		}
		return int64(math.Round(f)), nil
	}
	if f, isFloat := v.(float64); isFloat {
		return int64(math.Round(f)), nil
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", strings.Join(path, "."), err)
	}
	return n, nil
}

func float64Field(item RawItem, path ...string) (float64, error) {
	v, ok := lookup(item, path...)
	if !ok || v == nil {
		return 0, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", strings.Join(path, "."), err)
	}
	return f, nil
}

func stringField(item RawItem, path ...string) string {
	v, ok := lookup(item, path...)
	if !ok || v == nil {
		return ""
	}
	return cast.ToString(v)
}

// dateField parses a YYYY-MM-DD field, falling back when absent.
func dateField(item RawItem, fallback time.Time, path ...string) (time.Time, error) {
	s := stringField(item, path...)
	if s == "" {
		return truncateDay(fallback), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", strings.Join(path, "."), err)
	}
	return t, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
