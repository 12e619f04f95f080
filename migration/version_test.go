package migration

import (
	"sort"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	valid := []struct {
		in     string
		format VersionFormat
	}{
		{in: "1596897167", format: TimestampFormat},
		{in: "315360001", format: TimestampFormat},
		{in: "20200810120000", format: DatetimeFormat},
		{in: "1", format: NumericFormat},
		{in: "0042", format: NumericFormat},
		{in: "v1.2-beta", format: AnyFormat},
	}

	for _, tc := range valid {
		t.Run(tc.in, func(t *testing.T) {
			v, err := ParseVersion(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.in, v.Value)
			assert.Equal(t, tc.format, v.Format)
		})
	}

	invalid := []string{"", "   ", "has space", "semi;colon"}
	for _, in := range invalid {
		t.Run("invalid "+in, func(t *testing.T) {
			_, err := ParseVersion(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidVersionFormat))
		})
	}
}

func TestVersionCompare(t *testing.T) {
	tt := []struct {
		a, b string
		want int
	}{
		{a: "1", b: "2", want: -1},
		{a: "10", b: "9", want: 1},
		{a: "010", b: "10", want: 0},
		{a: "1596897167", b: "20200810120000", want: -1},
		{a: "abc", b: "abd", want: -1},
		{a: "10", b: "1a", want: -1},
		{a: "2", b: "1a", want: -1},
		{a: "v2", b: "v10", want: 1},
	}

	for _, tc := range tt {
		t.Run(tc.a+" vs "+tc.b, func(t *testing.T) {
			assert.Equal(t, tc.want, MustParseVersion(tc.a).Compare(MustParseVersion(tc.b)))
			assert.Equal(t, -tc.want, MustParseVersion(tc.b).Compare(MustParseVersion(tc.a)))
		})
	}

	t.Run("initial precedes everything", func(t *testing.T) {
		assert.True(t, Initial.Less(MustParseVersion("0")))
		assert.True(t, Initial.Equal(Version{}))
		assert.Equal(t, "0", Initial.String())
	})
}

func TestVersionOrderIsTotal(t *testing.T) {
	values := []string{"2", "10", "010", "1a", "abc", "0", "b", "1596897167", "v1", "20200810120000"}

	var vs []Version
	for _, s := range values {
		vs = append(vs, MustParseVersion(s))
	}

	t.Run("it is transitive and antisymmetric", func(t *testing.T) {
		for _, a := range vs {
			for _, b := range vs {
				assert.Equal(t, a.Compare(b), -b.Compare(a), "%s vs %s", a, b)

				for _, c := range vs {
					if a.Less(b) && b.Less(c) {
						assert.True(t, a.Less(c), "%s < %s < %s", a, b, c)
					}
				}
			}
		}
	})

	t.Run("sorting does not depend on the input order", func(t *testing.T) {
		ascending := make([]Version, len(vs))
		copy(ascending, vs)
		sort.SliceStable(ascending, func(i, j int) bool { return ascending[i].Less(ascending[j]) })

		descending := make([]Version, len(vs))
		for i := range vs {
			descending[i] = vs[len(vs)-1-i]
		}
		sort.SliceStable(descending, func(i, j int) bool { return descending[i].Less(descending[j]) })

		for i := range ascending {
			assert.True(t, ascending[i].Equal(descending[i]), "position %d: %s vs %s", i, ascending[i], descending[i])
		}
		assert.Equal(t, "0", ascending[0].Value)
		assert.Equal(t, "v1", ascending[len(ascending)-1].Value)
	})
}

func TestVersionCanonical(t *testing.T) {
	assert.Equal(t, "2", MustParseVersion("002").Canonical())
	assert.Equal(t, "0", MustParseVersion("000").Canonical())
	assert.Equal(t, "0a", MustParseVersion("0a").Canonical())
	assert.Equal(t, "", Initial.Canonical())
	assert.NotEqual(t, Initial.Canonical(), MustParseVersion("0").Canonical())

	stored, ok := FindVersion(MustParseVersion("002"), []Version{MustParseVersion("1"), MustParseVersion("2")})
	require.True(t, ok)
	assert.Equal(t, "2", stored.Value)

	_, ok = FindVersion(MustParseVersion("3"), []Version{MustParseVersion("1")})
	assert.False(t, ok)
}

func TestMaxVersion(t *testing.T) {
	assert.True(t, MaxVersion(nil).IsInitial())
	assert.Equal(t, "12", MaxVersion([]Version{
		MustParseVersion("3"), MustParseVersion("12"), MustParseVersion("9"),
	}).Value)
}

func TestGenerateVersion(t *testing.T) {
	clock := func() time.Time { return time.Date(2020, 8, 10, 12, 0, 0, 0, time.UTC) }

	ts := GenerateVersion(clock, TimestampFormat)
	assert.Equal(t, "1597060800", ts.Value)

	dt := GenerateVersion(clock, DatetimeFormat)
	assert.Equal(t, "20200810120000", dt.Value)
	assert.Equal(t, DatetimeFormat, dt.Format)
}
