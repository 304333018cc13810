package rowbinary

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// 文本输入可接受的时间格式，按顺序尝试
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DateType Date（UInt16 天数）或 Date32（Int32 天数）
type DateType struct {
	wide bool
}

var (
	Date   = DateType{}
	Date32 = DateType{wide: true}
)

func (t DateType) Name() string {
	if t.wide {
		return "Date32"
	}
	return "Date"
}

func (t DateType) Encode(w *Writer, v any) error {
	var days int64
	switch x := v.(type) {
	case time.Time:
		days = civilDays(x)
	case string:
		tm, err := parseTime(x, time.UTC)
		if err != nil {
			return wrapInvalid(t, v, err)
		}
		days = civilDays(tm)
	default:
		n, err := toInt64(v)
		if err != nil {
			return wrapInvalid(t, v, err)
		}
		days = n
	}
	if t.wide {
		if days < math.MinInt32 || days > math.MaxInt32 {
			return invalid(t, v, "%w", errOverflow)
		}
		w.WriteUInt32(uint32(int32(days)))
		return nil
	}
	if days < 0 || days > math.MaxUint16 {
		return invalid(t, v, "%w", errOverflow)
	}
	w.WriteUInt16(uint16(days))
	return nil
}

// civilDays 取时间在自身时区中的日历日期，换算为距 1970-01-01 的天数
func civilDays(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay
}

// DateTimeType DateTime([tz])：UInt32 Unix 秒
type DateTimeType struct {
	tz  string
	loc *time.Location
}

// NewDateTime 创建 DateTime，tz 为空表示 UTC 解析文本
func NewDateTime(tz string) (DateTimeType, error) {
	loc, err := loadLocation(tz)
	if err != nil {
		return DateTimeType{}, err
	}
	return DateTimeType{tz: tz, loc: loc}, nil
}

func (t DateTimeType) Name() string {
	if t.tz == "" {
		return "DateTime"
	}
	return fmt.Sprintf("DateTime('%s')", t.tz)
}

func (t DateTimeType) Encode(w *Writer, v any) error {
	sec, err := unixSeconds(v, t.location())
	if err != nil {
		return wrapInvalid(t, v, err)
	}
	if sec < 0 || sec > math.MaxUint32 {
		return invalid(t, v, "%w", errOverflow)
	}
	w.WriteUInt32(uint32(sec))
	return nil
}

func (t DateTimeType) location() *time.Location {
	if t.loc == nil {
		return time.UTC
	}
	return t.loc
}

// DateTime64Type DateTime64(P[, tz])：Int64，单位 10^-P 秒
type DateTime64Type struct {
	precision int
	tz        string
	loc       *time.Location
}

// NewDateTime64 创建 DateTime64，precision 取值 0..9
func NewDateTime64(precision int, tz string) (DateTime64Type, error) {
	if precision < 0 || precision > 9 {
		return DateTime64Type{}, fmt.Errorf("%w: DateTime64 precision %d", ErrUnsupportedType, precision)
	}
	loc, err := loadLocation(tz)
	if err != nil {
		return DateTime64Type{}, err
	}
	return DateTime64Type{precision: precision, tz: tz, loc: loc}, nil
}

func (t DateTime64Type) Name() string {
	if t.tz == "" {
		return fmt.Sprintf("DateTime64(%d)", t.precision)
	}
	return fmt.Sprintf("DateTime64(%d, '%s')", t.precision, t.tz)
}

func (t DateTime64Type) Encode(w *Writer, v any) error {
	scale := int64(math.Pow10(t.precision))
	var ticks int64
	switch x := v.(type) {
	case time.Time:
		ticks = t.ticks(x, scale)
	case string:
		// 整数文本与整数一样按已缩放的 tick 处理
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			ticks = n
			break
		}
		tm, err := parseTime(x, t.location())
		if err != nil {
			return wrapInvalid(t, v, err)
		}
		ticks = t.ticks(tm, scale)
	default:
		// 整数按已缩放的 tick 处理
		n, err := toInt64(v)
		if err != nil {
			return wrapInvalid(t, v, err)
		}
		ticks = n
	}
	w.WriteUInt64(uint64(ticks))
	return nil
}

func (t DateTime64Type) ticks(tm time.Time, scale int64) int64 {
	return tm.Unix()*scale + int64(tm.Nanosecond())/(int64(time.Second)/scale)
}

func (t DateTime64Type) location() *time.Location {
	if t.loc == nil {
		return time.UTC
	}
	return t.loc
}

func unixSeconds(v any, loc *time.Location) (int64, error) {
	switch x := v.(type) {
	case time.Time:
		return x.Unix(), nil
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return n, nil
		}
		tm, err := parseTime(x, loc)
		if err != nil {
			return 0, err
		}
		return tm.Unix(), nil
	case json.Number:
		return x.Int64()
	}
	return toInt64(v)
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if tm, err := time.ParseInLocation(layout, s, loc); err == nil {
			return tm, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func loadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrUnsupportedType, tz, err)
	}
	return loc, nil
}
