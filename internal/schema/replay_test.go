package schema

import (
	"context"
	"database/sql"
	"testing"

	"github.com/denismitr/tern/v4/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scratch applies every executed statement to an in-memory snapshot
type scratch struct {
	s Snapshot
}

func (sc *scratch) ExecContext(_ context.Context, query string, _ ...interface{}) (sql.Result, error) {
	return nil, sc.s.Apply(query)
}

func (sc *scratch) Snapshot(context.Context) (Snapshot, error) {
	return sc.s, nil
}

func TestReplay(t *testing.T) {
	migrations := migration.Migrations{
		{Key: "1_users", Version: migration.MustParseVersion("1"), Migrate: []string{"CREATE TABLE users (id INT)"}},
		{
			Key:     "2_email",
			Version: migration.MustParseVersion("2"),
			Up: func(ctx context.Context, ex migration.Executor) error {
				_, err := ex.ExecContext(ctx, "ALTER TABLE users ADD COLUMN email TEXT")
				return err
			},
		},
	}

	t.Run("it applies every up transform", func(t *testing.T) {
		s, err := Replay(context.Background(), &scratch{s: NewSnapshot()}, migrations)
		require.NoError(t, err)

		users, ok := s.Table("users")
		require.True(t, ok)
		_, ok = users.Column("email")
		assert.True(t, ok)
	})

	t.Run("declare refuses go migrations", func(t *testing.T) {
		_, err := Declare(migrations)
		require.Error(t, err)
	})

	t.Run("declare uses migrate scripts", func(t *testing.T) {
		s, err := Declare(migrations[:1])
		require.NoError(t, err)
		assert.Equal(t, []string{"users"}, s.TableNames())
	})

	t.Run("replay names the failing migration", func(t *testing.T) {
		broken := migration.Migrations{
			{Key: "3_broken", Version: migration.MustParseVersion("3"), Migrate: []string{"ALTER TABLE nope ADD COLUMN x INT"}},
		}
		_, err := Replay(context.Background(), &scratch{s: NewSnapshot()}, broken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "3_broken")
	})
}
