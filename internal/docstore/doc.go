package docstore

import (
	"fmt"
	"strconv"
	"time"
)

// Doc is a document snapshot. Missing fields read as zero values.
type Doc struct {
	Ref    Ref
	Fields map[string]string
}

func (d Doc) Has(field string) bool {
	_, ok := d.Fields[field]
	return ok
}

func (d Doc) String(field string) string { return d.Fields[field] }

func (d Doc) Int(field string) int {
	v, _ := strconv.Atoi(d.Fields[field])
	return v
}

func (d Doc) Int64(field string) int64 {
	v, _ := strconv.ParseInt(d.Fields[field], 10, 64)
	return v
}

func (d Doc) Float(field string) float64 {
	v, _ := strconv.ParseFloat(d.Fields[field], 64)
	return v
}

func (d Doc) Bool(field string) bool {
	v, _ := strconv.ParseBool(d.Fields[field])
	return v
}

// Time returns nil for a missing or empty timestamp.
func (d Doc) Time(field string) *time.Time {
	raw := d.Fields[field]
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil
	}
	return &t
}

func encodeValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(t)
	}
}
