package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(t *testing.T, date string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation("2006-01-02 15:04", date+" 14:30", time.UTC)
	require.NoError(t, err)
	return d
}

func TestResolveTokens(t *testing.T) {
	wednesday := at(t, "2024-05-15")

	cases := []struct {
		token string
		want  Range
	}{
		{Today, Range{"2024-05-15", "2024-05-15"}},
		{Yesterday, Range{"2024-05-14", "2024-05-14"}},
		{Week, Range{"2024-05-13", "2024-05-15"}},
		{LastWeek, Range{"2024-05-06", "2024-05-12"}},
		{TwoWeeks, Range{"2024-05-01", "2024-05-15"}},
		{Month, Range{"2024-05-01", "2024-05-15"}},
		{LastMonth, Range{"2024-04-01", "2024-04-30"}},
		{"quarter", Range{"2024-05-15", "2024-05-15"}},
		{"", Range{"2024-05-15", "2024-05-15"}},
	}
	for _, tc := range cases {
		got, err := Resolve(tc.token, wednesday, CustomDates{})
		require.NoError(t, err, tc.token)
		assert.Equal(t, tc.want, got, tc.token)
	}
}

func TestResolveWeekBoundaries(t *testing.T) {
	sunday := at(t, "2024-05-19")
	got, err := Resolve(Week, sunday, CustomDates{})
	require.NoError(t, err)
	assert.Equal(t, Range{"2024-05-13", "2024-05-19"}, got)

	monday := at(t, "2024-05-20")
	got, err = Resolve(Week, monday, CustomDates{})
	require.NoError(t, err)
	assert.Equal(t, Range{"2024-05-20", "2024-05-20"}, got)

	got, err = Resolve(LastWeek, monday, CustomDates{})
	require.NoError(t, err)
	assert.Equal(t, Range{"2024-05-13", "2024-05-19"}, got)
}

func TestResolveLastMonthAcrossYearAndLeapDay(t *testing.T) {
	got, err := Resolve(LastMonth, at(t, "2024-03-10"), CustomDates{})
	require.NoError(t, err)
	assert.Equal(t, Range{"2024-02-01", "2024-02-29"}, got)

	got, err = Resolve(LastMonth, at(t, "2024-01-10"), CustomDates{})
	require.NoError(t, err)
	assert.Equal(t, Range{"2023-12-01", "2023-12-31"}, got)
}

func TestResolveCustom(t *testing.T) {
	now := at(t, "2024-05-15")

	got, err := Resolve(Custom, now, CustomDates{Start: "2024-02-03"})
	require.NoError(t, err)
	assert.Equal(t, Range{"2024-02-03", "2024-02-03"}, got)

	got, err = Resolve(Custom, now, CustomDates{Start: "2024-02-03", End: "2024-02-10"})
	require.NoError(t, err)
	assert.Equal(t, Range{"2024-02-03", "2024-02-10"}, got)

	_, err = Resolve(Custom, now, CustomDates{Start: "03/02/2024"})
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = Resolve(Custom, now, CustomDates{Start: "2024-02-10", End: "2024-02-03"})
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestRangeBoundsAndDays(t *testing.T) {
	r := Range{StartDate: "2024-05-13", EndDate: "2024-05-15"}
	start, end, err := r.Bounds(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 5, 15, 23, 59, 59, 999999999, time.UTC), end)
	assert.Equal(t, 3, r.Days())

	_, _, err = Range{StartDate: "bad", EndDate: "2024-05-15"}.Bounds(time.UTC)
	assert.ErrorIs(t, err, ErrInvalidDate)
}
