package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDayNormalizes(t *testing.T) {
	got, err := Day("5.3.2024")
	require.NoError(t, err)
	require.Equal(t, "05.03.2024", got)

	got, err = Day(" 15.12.2024 ")
	require.NoError(t, err)
	require.Equal(t, "15.12.2024", got)
}

func TestDayRejectsImpossible(t *testing.T) {
	for _, in := range []string{"32.01.2024", "29.02.2023", "2024-01-05", "январь", ""} {
		_, err := Day(in)
		require.ErrorIs(t, err, ErrBadDate, in)
	}
}

func TestDaysAgo(t *testing.T) {
	require.Equal(t, Today(), DaysAgo(0))
	yesterday := time.Now().AddDate(0, 0, -1).Format(DayLayout)
	require.Equal(t, yesterday, DaysAgo(1))
}

func TestDayRangeOrdersBounds(t *testing.T) {
	from, to, err := DayRange("10.02.2024 - 01.02.2024")
	require.NoError(t, err)
	require.Equal(t, "01.02.2024", from)
	require.Equal(t, "10.02.2024", to)

	from, to, err = DayRange("01.02.2024 10.02.2024")
	require.NoError(t, err)
	require.Equal(t, "01.02.2024", from)
	require.Equal(t, "10.02.2024", to)
}

func TestDayRangeRejectsSingleDate(t *testing.T) {
	_, _, err := DayRange("01.02.2024")
	require.Error(t, err)
}
