package parse

import (
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DayLayout is the register date format.
const DayLayout = "02.01.2006"

var dayPattern = regexp.MustCompile(`^\s*(\d{1,2})\.(\d{1,2})\.(\d{4})\s*$`)

// ErrBadDate is returned for text that is not a valid DD.MM.YYYY date.
var ErrBadDate = errors.New("invalid date, expected DD.MM.YYYY")

// Day validates DD.MM.YYYY text (single-digit day/month allowed) and returns
// it normalized to the register format.
func Day(s string) (string, error) {
	m := dayPattern.FindStringSubmatch(s)
	if m == nil {
		return "", ErrBadDate
	}
	t, err := time.Parse("2.1.2006", m[1]+"."+m[2]+"."+m[3])
	if err != nil {
		return "", ErrBadDate
	}
	return t.Format(DayLayout), nil
}

// Today returns the current date in the register format.
func Today() string {
	return time.Now().Format(DayLayout)
}

// DaysAgo returns the date n days before today in the register format.
func DaysAgo(n int) string {
	return time.Now().AddDate(0, 0, -n).Format(DayLayout)
}

// ToTime converts a register-format date back into a time.Time.
func ToTime(day string) (time.Time, error) {
	t, err := time.Parse(DayLayout, strings.TrimSpace(day))
	if err != nil {
		return time.Time{}, ErrBadDate
	}
	return t, nil
}

var rangeSplit = regexp.MustCompile(`\s*[–\-]\s*|\s+`)

// DayRange parses "DD.MM.YYYY - DD.MM.YYYY" (dash or whitespace separated)
// and returns the bounds in chronological order.
func DayRange(text string) (from, to string, err error) {
	parts := rangeSplit.Split(strings.TrimSpace(text), 2)
	if len(parts) < 2 {
		return "", "", ErrBadDate
	}
	from, err = Day(parts[0])
	if err != nil {
		return "", "", err
	}
	to, err = Day(parts[1])
	if err != nil {
		return "", "", err
	}
	t1, _ := ToTime(from)
	t2, _ := ToTime(to)
	if t1.After(t2) {
		from, to = to, from
	}
	return from, to, nil
}
