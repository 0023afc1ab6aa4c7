package parser

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const fmDelim = "---"

// Front matter keys consumed into dedicated Note fields. Everything else
// that is a scalar lands in Note.Metadata.
var reservedKeys = map[string]struct{}{
	"id":           {},
	"external_id":  {},
	"title":        {},
	"tags":         {},
	"notebook":     {},
	"created":      {},
	"updated":      {},
	"created_time": {},
	"updated_time": {},
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// splitFrontMatter separates YAML front matter (between leading --- lines)
// from the body. Content without an opening delimiter, or with an opening
// delimiter but no closing one, is all body. Invalid YAML is an error.
// Line endings must already be normalized.
func splitFrontMatter(data string) (map[string]any, string, error) {
	lines := strings.SplitAfter(data, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], " \t\n") != fmDelim {
		return nil, data, nil
	}

	closing := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], " \t\n") == fmDelim {
			closing = i
			break
		}
	}
	if closing < 0 {
		return nil, data, nil
	}

	block := strings.Join(lines[1:closing], "")
	body := strings.Join(lines[closing+1:], "")

	fm := map[string]any{}
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFrontMatter, err)
	}
	if fm == nil {
		fm = map[string]any{}
	}
	return fm, body, nil
}

// fmString returns a scalar front matter value as a trimmed string.
func fmString(fm map[string]any, key string) string {
	v, ok := fm[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := scalarString(v)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// fmTags accepts either a YAML list or a comma separated string.
func fmTags(fm map[string]any) []string {
	var out []string
	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := scalarString(item); ok {
				out = append(out, s)
			}
		}
	case string:
		out = append(out, strings.Split(v, ",")...)
	}
	return out
}

// fmTime reads the first timestamp present among keys. Integers are Joplin
// raw milliseconds since the epoch; strings are parsed with the known
// layouts. Unparseable values yield nil.
func fmTime(fm map[string]any, keys ...string) *time.Time {
	for _, key := range keys {
		v, ok := fm[key]
		if !ok || v == nil {
			continue
		}
		if t, ok := toTime(v); ok {
			return &t
		}
	}
	return nil
}

func toTime(v any) (time.Time, bool) {
	switch tv := v.(type) {
	case time.Time:
		return tv.UTC(), true
	case int:
		return time.UnixMilli(int64(tv)).UTC(), true
	case int64:
		return time.UnixMilli(tv).UTC(), true
	case uint64:
		if tv > math.MaxInt64 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(tv)).UTC(), true
	case float64:
		return time.UnixMilli(int64(tv)).UTC(), true
	case string:
		s := strings.TrimSpace(tv)
		if s == "" {
			return time.Time{}, false
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// fmMetadata collects the remaining scalar fields as strings.
func fmMetadata(fm map[string]any) map[string]string {
	keys := make([]string, 0, len(fm))
	for k := range fm {
		if _, reserved := reservedKeys[k]; !reserved {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var md map[string]string
	for _, k := range keys {
		s, ok := scalarString(fm[k])
		if !ok {
			continue
		}
		if md == nil {
			md = make(map[string]string)
		}
		md[k] = s
	}
	return md
}

func scalarString(v any) (string, bool) {
	switch tv := v.(type) {
	case string:
		return tv, true
	case bool, int, int64, uint64:
		return fmt.Sprint(tv), true
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64), true
	case time.Time:
		return tv.UTC().Format(time.RFC3339Nano), true
	default:
		return "", false
	}
}
