package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2022, 7, 31, 23, 28, 37, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"zulu with zone suffix", "2022-07-31T23:28:37Z[UTC]", want},
		{"bare zulu", "2022-07-31T23:28:37Z", want},
		{"offset", "2022-08-01T01:28:37+02:00", want},
		{"fractional seconds", "2022-07-31T23:28:37.5Z", want.Add(500 * time.Millisecond)},
		{"no offset", "2022-07-31T23:28:37", want},
		{"space separated", "2022-07-31 23:28:37", want},
		{"named zone", "2022-08-01T01:28:37[Europe/Berlin]", want},
		{"offset wins over zone", "2022-07-31T23:28:37Z[Europe/Berlin]", want},
		{"surrounding whitespace", "  2022-07-31T23:28:37Z[UTC] ", want},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseTimestamp_Errors(t *testing.T) {
	for _, input := range []string{
		"",
		"yesterday",
		"2022-07-31",
		"2022-07-31T23:28:37Z[UTC",
		"2022-07-31T23:28:37[Not/AZone]",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseTimestamp(input)
			assert.Error(t, err)
		})
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"abc", "abc"},
		{float64(5), "5"},
		{float64(5.0), "5"},
		{float64(-3), "-3"},
		{2.5, "2.5"},
		{float32(4), "4"},
		{7, "7"},
		{int64(-8), "-8"},
		{int32(9), "9"},
		{json.Number("42"), "42"},
		{json.Number("6.0"), "6"},
		{json.Number("1.25"), "1.25"},
		{true, "true"},
	}

	for _, tt := range tests {
		got, err := FormatValue(tt.in)
		require.NoError(t, err, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%#v", tt.in)
	}
}

func TestFormatValue_Errors(t *testing.T) {
	_, err := FormatValue(nil)
	assert.Error(t, err)

	_, err = FormatValue([]int{1})
	assert.ErrorContains(t, err, "unsupported value type")

	_, err = FormatValue(json.Number("nope"))
	assert.Error(t, err)
}
