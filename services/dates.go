package services

import (
	"strings"
	"time"

	"school_equipment_portal/apperror"
)

const DateLayout = "2006-01-02"

// ParseDate 接受 2006-01-02 或 RFC3339；只保留日历日（按字符串中的日期，不做时区换算），存为 UTC 零点
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, apperror.InvalidArgument("date is required")
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, apperror.InvalidArgument("malformed date %q", s)
	}
	return CalendarDay(t), nil
}

// CalendarDay 取 t 所在时区的年月日，归一到 UTC 零点
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(t time.Time) string { return t.UTC().Format(DateLayout) }

// Today 按 loc 的当天日期；loc 为空时用 UTC
func Today(now time.Time, loc *time.Location) time.Time {
	if loc != nil {
		now = now.In(loc)
	}
	return CalendarDay(now)
}

func validateWindow(borrow, ret time.Time) error {
	if borrow.IsZero() || ret.IsZero() {
		return apperror.InvalidArgument("borrowDate and returnDate are required")
	}
	if borrow.After(ret) {
		return apperror.InvalidArgument("borrowDate %s is after returnDate %s", FormatDate(borrow), FormatDate(ret))
	}
	return nil
}
