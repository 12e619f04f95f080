package migration

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrInvalidVersionFormat = errors.New("invalid version format")

type (
	VersionFormat string

	// Version identifies a migration. The zero Version is the initial state,
	// it precedes every other version and means "nothing applied".
	Version struct {
		Format     VersionFormat
		Value      string
		MigratedAt time.Time
	}

	ClockFunc func() time.Time
)

const (
	TimestampFormat VersionFormat = "timestamp"
	DatetimeFormat  VersionFormat = "datetime"
	NumericFormat   VersionFormat = "numeric"
	AnyFormat       VersionFormat = "any"

	MaxTimestampLength = 12
	MinTimestampLength = 9
	DatetimeLength     = 14
)

var anyVersionRegexp = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Initial is the sentinel that precedes the first known migration.
var Initial = Version{}

// ParseVersion creates a version from its string form and detects its format
func ParseVersion(s string) (Version, error) {
	v := Version{Value: strings.TrimSpace(s)}
	if v.Value == "" {
		return v, errors.Wrap(ErrInvalidVersionFormat, "version is empty")
	}

	switch {
	case !isDigits(v.Value):
		if !anyVersionRegexp.MatchString(v.Value) {
			return v, errors.Wrapf(ErrInvalidVersionFormat, "%s", v.Value)
		}
		v.Format = AnyFormat
	case len(v.Value) >= MinTimestampLength && len(v.Value) <= MaxTimestampLength:
		v.Format = TimestampFormat
	case len(v.Value) == DatetimeLength:
		v.Format = DatetimeFormat
	default:
		v.Format = NumericFormat
	}

	return v, nil
}

// MustParseVersion is like ParseVersion but panics on malformed input
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) IsInitial() bool {
	return v.Value == ""
}

func (v Version) String() string {
	if v.IsInitial() {
		return "0"
	}
	return v.Value
}

// Compare returns -1, 0 or 1. Digit-only values precede all other values
// and are compared numerically, the rest are compared lexicographically.
func (v Version) Compare(other Version) int {
	if v.Value == other.Value {
		return 0
	}
	if v.IsInitial() {
		return -1
	}
	if other.IsInitial() {
		return 1
	}

	vDigits, otherDigits := isDigits(v.Value), isDigits(other.Value)
	switch {
	case vDigits && !otherDigits:
		return -1
	case !vDigits && otherDigits:
		return 1
	case !vDigits:
		return strings.Compare(v.Value, other.Value)
	}

	a, b := v.Canonical(), other.Canonical()
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// Canonical is the identity of the version: equal versions have equal
// canonical forms, so "010" and "10" share one. Initial is the empty string.
func (v Version) Canonical() string {
	if v.IsInitial() || !isDigits(v.Value) {
		return v.Value
	}

	trimmed := strings.TrimLeft(v.Value, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// GenerateVersion creates a new version for a migration about to be created
func GenerateVersion(cf ClockFunc, vf VersionFormat) Version {
	var v Version

	v.Format = vf
	if v.Format == TimestampFormat {
		v.Value = strconv.Itoa(int(cf().Unix()))
	} else {
		v.Format = DatetimeFormat
		v.Value = cf().UTC().Format("20060102150405")
	}

	return v
}

// MaxVersion returns the greatest of the versions or Initial
func MaxVersion(versions []Version) Version {
	max := Initial
	for _, v := range versions {
		if max.Less(v) {
			max = v
		}
	}
	return max
}

func InVersions(version Version, versions []Version) bool {
	_, ok := FindVersion(version, versions)
	return ok
}

// FindVersion returns the element of versions equal to version, keeping
// the spelling it was stored with
func FindVersion(version Version, versions []Version) (Version, bool) {
	for _, v := range versions {
		if v.Equal(version) {
			return v, true
		}
	}

	return Initial, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
