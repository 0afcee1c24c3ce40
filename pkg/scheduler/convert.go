package scheduler

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// 配置、触发器参数与持久化状态中的松散类型转换

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float32:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		i, err := toInt(v)
		return float64(i), err
	}
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(b))
	default:
		i, err := toInt(v)
		if err != nil {
			return false, fmt.Errorf("cannot convert %T to bool", v)
		}
		return i != 0, nil
	}
}

// toDuration 数字按秒解释，字符串支持 "10s" 或 "10"
func toDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		s := strings.TrimSpace(d)
		if dur, err := time.ParseDuration(s); err == nil {
			return dur, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", d)
		}
		return secondsToDuration(f), nil
	default:
		f, err := toFloat(v)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %T to duration", v)
		}
		return secondsToDuration(f), nil
	}
}

func secondsToDuration(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// toTime 支持 time.Time、*time.Time 与常见时间字符串，无时区信息时按 loc 解释
func toTime(v any, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return *t, nil
	case string:
		s := strings.TrimSpace(t)
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts, nil
		}
		for _, layout := range timeLayouts[1:] {
			if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid time %q", t)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to time", v)
	}
}

func toLocation(v any) (*time.Location, error) {
	switch l := v.(type) {
	case *time.Location:
		return l, nil
	case string:
		return time.LoadLocation(l)
	default:
		return nil, fmt.Errorf("cannot convert %T to location", v)
	}
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseOptionalTime(v any) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	t, err := toTime(v, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ToUUID 解析引用 ID，支持 uuid.UUID、UUID 字符串、含 id 的 map 以及带 GetID 方法的对象
func ToUUID(v any) (uuid.UUID, error) {
	switch ref := v.(type) {
	case uuid.UUID:
		return ref, nil
	case *uuid.UUID:
		if ref != nil {
			return *ref, nil
		}
	case string:
		return uuid.Parse(ref)
	case map[string]any:
		if id, ok := ref["id"]; ok && id != nil {
			return ToUUID(id)
		}
	case interface{ GetID() uuid.UUID }:
		return ref.GetID(), nil
	case interface{ GetID() string }:
		return uuid.Parse(ref.GetID())
	}
	return uuid.Nil, fmt.Errorf("cannot resolve an id from %T", v)
}
