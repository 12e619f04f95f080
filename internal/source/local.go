package source

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/denismitr/tern/v4/internal/logger"
	"github.com/denismitr/tern/v4/migration"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const DefaultMigrationsFolder = "./migrations"

const (
	defaultSqlExtension = "sql"

	migrateFileSuffix                = "migrate"
	rollbackFileSuffix               = "rollback"
	defaultMigrateFileFullExtension  = ".migrate.sql"
	defaultRollbackFileFullExtension = ".rollback.sql"

	timestampBasedVersionFormat = `^(?P<version>\d{9,12})(_[\w-]+)?$`
	datetimeBasedVersionFormat  = `^(?P<version>\d{14})(_[\w-]+)?$`
	numericBasedVersionFormat   = `^(?P<version>\d+)(_[\w-]+)?$`
	anyBasedVersionFormat       = `^(?P<version>[A-Za-z0-9.-]+)(_[\w-]+)?$`
	nameFormat                  = `^[^_]+_(?P<name>[\w-]+)$`

	maxConcurrentReads = 8
)

var nameRegexp = regexp.MustCompile(nameFormat)

// LocalFileSource reads {version}_{name}.migrate.sql files and their optional
// {version}_{name}.rollback.sql counterparts from one flat directory
type LocalFileSource struct {
	folder        string
	fsys          fs.FS
	lg            logger.Logger
	versionRegexp *regexp.Regexp
	versionFormat migration.VersionFormat
}

var _ Source = (*LocalFileSource)(nil)

func NewLocalFSSource(folder string, lg logger.Logger, vf migration.VersionFormat) (*LocalFileSource, error) {
	s, err := NewFSSource(os.DirFS(folder), lg, vf)
	if err != nil {
		return nil, err
	}

	s.folder = folder
	return s, nil
}

// NewFSSource reads migrations from any fs.FS, an embed.FS for instance.
// Such a source cannot create migrations.
func NewFSSource(fsys fs.FS, lg logger.Logger, vf migration.VersionFormat) (*LocalFileSource, error) {
	versionRegexp, err := LocalFSParsingRules(vf)
	if err != nil {
		return nil, err
	}

	if lg == nil {
		lg = logger.NullLogger{}
	}

	return &LocalFileSource{
		fsys:          fsys,
		versionRegexp: versionRegexp,
		versionFormat: vf,
		lg:            lg,
	}, nil
}

func LocalFSParsingRules(vf migration.VersionFormat) (*regexp.Regexp, error) {
	var versionRegexFormat string

	switch vf {
	case migration.TimestampFormat:
		versionRegexFormat = timestampBasedVersionFormat
	case migration.DatetimeFormat:
		versionRegexFormat = datetimeBasedVersionFormat
	case migration.NumericFormat:
		versionRegexFormat = numericBasedVersionFormat
	default:
		versionRegexFormat = anyBasedVersionFormat
	}

	versionRegexp, err := regexp.Compile(versionRegexFormat)
	if err != nil {
		return nil, err
	}

	return versionRegexp, nil
}

func (lfs *LocalFileSource) IsValid() bool {
	info, err := fs.Stat(lfs.fsys, ".")
	if err != nil {
		return false
	}

	return info.IsDir()
}

func (lfs *LocalFileSource) AlreadyExists(version, name string) bool {
	key := migration.CreateKeyFromVersionAndName(version, name)
	info, err := fs.Stat(lfs.fsys, key+defaultMigrateFileFullExtension)
	if err != nil {
		return false
	}

	return !info.IsDir()
}

// Create writes empty migration files, it does not overwrite existing ones
func (lfs *LocalFileSource) Create(version, name string, withRollback bool) (*migration.Migration, error) {
	if lfs.folder == "" {
		return nil, ErrReadOnlySource
	}

	v, err := lfs.extractVersionFromKey(version)
	if err != nil {
		return nil, err
	}

	key := migration.CreateKeyFromVersionAndName(v.Value, name)

	files := []string{key + defaultMigrateFileFullExtension}
	if withRollback {
		files = append(files, key+defaultRollbackFileFullExtension)
	}

	for _, f := range files {
		if err := createEmptyFile(filepath.Join(lfs.folder, f)); err != nil {
			return nil, err
		}
	}

	return &migration.Migration{
		Key:     key,
		Name:    name,
		Version: v,
	}, nil
}

func createEmptyFile(filename string) error {
	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return errors.Wrapf(ErrMigrationFileExists, "%s", filename)
		}
		return errors.Wrapf(err, "could not create file [%s]", filename)
	}

	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "could not close file %s", filename)
	}

	return nil
}

// Select reads the migration files concurrently and returns them sorted by version
func (lfs *LocalFileSource) Select(ctx context.Context, f Filter) (migration.Migrations, error) {
	keys, err := lfs.getAllKeys()
	if err != nil {
		return nil, err
	}

	result := make(migration.Migrations, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)

	for i, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			m, err := lfs.readOne(key)
			if err != nil {
				mErr := errors.Wrapf(err, "with key %s", key)
				lfs.lg.Error(mErr)
				return mErr
			}

			result[i] = m
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Stable(result)

	return filterMigrations(result, f), nil
}

// getAllKeys lists the migration keys of the folder, files that are not
// sql files are skipped
func (lfs *LocalFileSource) getAllKeys() ([]string, error) {
	entries, err := fs.ReadDir(lfs.fsys, ".")
	if err != nil {
		return nil, errors.Wrapf(err, "could not read keys from folder %s", lfs.folder)
	}

	type files struct {
		migrate, rollback int
	}

	found := make(map[string]*files)
	var keys []string

	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != "."+defaultSqlExtension {
			continue
		}

		key, suffix, err := convertLocalFilePathToKey(entry.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "file %s is not a valid migration name", entry.Name())
		}

		if _, ok := found[key]; !ok {
			found[key] = &files{}
			keys = append(keys, key)
		}

		if suffix == migrateFileSuffix {
			found[key].migrate++
		} else {
			found[key].rollback++
		}

		if found[key].migrate > 1 || found[key].rollback > 1 {
			return nil, errors.Wrapf(ErrTooManyFilesForKey, "%s", key)
		}
	}

	for _, key := range keys {
		if found[key].migrate == 0 {
			return nil, errors.Wrapf(ErrMissingMigrateFile, "%s", key)
		}
	}

	return keys, nil
}

func (lfs *LocalFileSource) readOne(key string) (*migration.Migration, error) {
	migrateContents, err := fs.ReadFile(lfs.fsys, key+defaultMigrateFileFullExtension)
	if err != nil {
		return nil, err
	}

	rollbackContents, err := fs.ReadFile(lfs.fsys, key+defaultRollbackFileFullExtension)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return lfs.createMigration(key, migrateContents, rollbackContents)
}

func (lfs *LocalFileSource) createMigration(key string, migrateContents, rollbackContents []byte) (*migration.Migration, error) {
	version, err := lfs.extractVersionFromKey(key)
	if err != nil {
		return nil, err
	}

	factory := migration.NewMigrationFromFile(
		key,
		lfs.extractNameFromKey(key),
		version,
		string(migrateContents),
		string(rollbackContents),
	)

	return factory()
}

func (lfs *LocalFileSource) extractVersionFromKey(key string) (migration.Version, error) {
	matches := lfs.versionRegexp.FindStringSubmatch(key)
	if len(matches) < 2 {
		return migration.Version{}, errors.Wrapf(ErrInvalidVersion, "%s", key)
	}

	v, err := migration.ParseVersion(matches[1])
	if err != nil {
		return migration.Version{}, errors.Wrapf(ErrInvalidVersion, "%s: %s", key, err.Error())
	}

	return v, nil
}

func (lfs *LocalFileSource) extractNameFromKey(key string) string {
	matches := nameRegexp.FindStringSubmatch(key)
	if len(matches) < 2 {
		return ""
	}

	return humanize(matches[1])
}

func convertLocalFilePathToKey(p string) (string, string, error) {
	base := filepath.Base(p)
	segments := strings.Split(base, ".")

	if len(segments) != 3 {
		return "", "", ErrNotAMigrationFile
	}

	if segments[2] != defaultSqlExtension || !(segments[1] == migrateFileSuffix || segments[1] == rollbackFileSuffix) {
		return "", "", ErrNotAMigrationFile
	}

	return segments[0], segments[1], nil
}
