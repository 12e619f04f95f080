package tern

import (
	"testing"

	"github.com/denismitr/tern/v4/migration"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_createConfigurators(t *testing.T) {
	tt := []struct {
		name                  string
		expectedConfigurators int
		steps                 int
		versions              []string
	}{
		{
			name:                  "zero values",
			expectedConfigurators: 0,
		},
		{
			name:                  "both params",
			expectedConfigurators: 2,
			steps:                 3,
			versions:              []string{"1234567890", "1234567899"},
		},
		{
			name:                  "only versions",
			expectedConfigurators: 1,
			steps:                 0,
			versions:              []string{"1234567890", "1234567899"},
		},
		{
			name:                  "only steps",
			expectedConfigurators: 1,
			steps:                 4,
			versions:              []string{},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			configurators, err := CreateConfigurators(tc.steps, tc.versions)
			require.NoError(t, err)
			assert.Len(t, configurators, tc.expectedConfigurators)

			a := newAction(configurators...)

			assert.Equal(t, tc.steps, a.steps)
			assert.Equal(t, "latest", a.target)
			assert.Len(t, a.versions, len(tc.versions))

			for i := range tc.versions {
				assert.Equal(t, tc.versions[i], a.versions[i].Value)
			}
		})
	}

	t.Run("malformed version", func(t *testing.T) {
		_, err := CreateConfigurators(0, []string{"1 2"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, migration.ErrInvalidVersionFormat))
	})
}

func Test_action(t *testing.T) {
	t.Parallel()

	t.Run("versions and steps", func(t *testing.T) {
		a := newAction(
			WithSteps(3),
			WithVersions(migration.MustParseVersion("00000000000001"), migration.MustParseVersion("00000000000002")),
		)

		assert.Equal(t, 3, a.steps)
		require.Len(t, a.versions, 2)
		assert.Equal(t, "00000000000001", a.versions[0].Value)
		assert.Equal(t, "00000000000002", a.versions[1].Value)
	})

	t.Run("target and all", func(t *testing.T) {
		a := newAction(WithTarget("prev"), WithAll())
		assert.Equal(t, "prev", a.target)
		assert.True(t, a.all)

		assert.Equal(t, "latest", newAction(WithTarget("")).target)
	})
}
