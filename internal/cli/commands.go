package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/denismitr/tern/v4"
	"github.com/denismitr/tern/v4/internal/source"
	"github.com/denismitr/tern/v4/migration"
	"github.com/pkg/errors"
)

var (
	ErrSchemaDiverged         = errors.New("live schema diverges from the declared schema")
	ErrMigrationAlreadyExists = errors.New("migration already exists")
	ErrFolderInvalid          = errors.New("migrations folder is invalid")
	ErrNoVersions             = errors.New("pass --all or at least one version")
	ErrAmbiguousSchemaSource  = errors.New("pass either --schema-file or --shadow-url")
)

type MigrateCmd struct {
	Target string `arg:"" optional:"" default:"latest" help:"latest, first, next, prev, current or an explicit version."`
	Steps  int    `help:"Run at most this many steps."`
	DryRun bool   `help:"Print the plan without running it."`
}

func (c *MigrateCmd) Run(appCtx *Context) (err error) {
	m, closer, err := appCtx.migrator()
	if err != nil {
		return err
	}
	defer closeMigrator(closer, &err)

	cfs := []tern.ActionConfigurator{tern.WithTarget(c.Target)}
	if c.Steps > 0 {
		cfs = append(cfs, tern.WithSteps(c.Steps))
	}

	if c.DryRun {
		plan, planErr := m.Plan(appCtx.Ctx, cfs...)
		if planErr != nil {
			return planErr
		}
		return appCtx.printPlan(plan)
	}

	report, err := m.Migrate(appCtx.Ctx, cfs...)
	appCtx.printReport(report)

	return err
}

type RollbackCmd struct {
	Steps int `help:"Roll back at most this many migrations, all of them by default."`
}

func (c *RollbackCmd) Run(appCtx *Context) (err error) {
	m, closer, err := appCtx.migrator()
	if err != nil {
		return err
	}
	defer closeMigrator(closer, &err)

	cfs, err := tern.CreateConfigurators(c.Steps, nil)
	if err != nil {
		return err
	}

	report, err := m.Rollback(appCtx.Ctx, cfs...)
	appCtx.printReport(report)

	return err
}

type RefreshCmd struct {
	Steps int `help:"Roll back at most this many migrations before migrating to latest."`
}

func (c *RefreshCmd) Run(appCtx *Context) (err error) {
	m, closer, err := appCtx.migrator()
	if err != nil {
		return err
	}
	defer closeMigrator(closer, &err)

	cfs, err := tern.CreateConfigurators(c.Steps, nil)
	if err != nil {
		return err
	}

	rolledBack, migrated, err := m.Refresh(appCtx.Ctx, cfs...)
	appCtx.printReport(rolledBack)
	appCtx.printReport(migrated)

	return err
}

type StatusCmd struct{}

func (c *StatusCmd) Run(appCtx *Context) (err error) {
	m, closer, err := appCtx.migrator()
	if err != nil {
		return err
	}
	defer closeMigrator(closer, &err)

	status, err := m.Status(appCtx.Ctx)
	if err != nil {
		return err
	}

	data := make([][]string, 0, len(status.Entries))
	for _, e := range status.Entries {
		state, appliedAt := "pending", ""
		if e.Applied {
			state = "applied"
			if !e.AppliedAt.IsZero() {
				appliedAt = e.AppliedAt.UTC().Format(time.RFC3339)
			}
		}
		if e.Unknown {
			state = "unknown"
		}

		data = append(data, []string{e.Version.Value, e.Name, state, appliedAt})
	}

	if err := renderTable([]string{"Version", "Name", "State", "Applied At"}, data, appCtx.Stdout); err != nil {
		return errors.Wrap(err, "could not render status")
	}

	appCtx.success("current [%s] latest [%s] pending %d", status.Current, status.Latest, status.Pending)
	if status.HasUnknown() {
		appCtx.warn("applied versions without a migration found, remove them with: tern version delete VERSION")
	}

	return nil
}

type ValidateCmd struct {
	SchemaFile string `type:"existingfile" help:"DDL file with the declared schema."`
	ShadowURL  string `name:"shadow-url" help:"Empty scratch database to replay every migration on."`
}

func (c *ValidateCmd) Run(appCtx *Context) (err error) {
	if c.SchemaFile != "" && c.ShadowURL != "" {
		return ErrAmbiguousSchemaSource
	}

	m, closer, err := appCtx.migrator()
	if err != nil {
		return err
	}
	defer closeMigrator(closer, &err)

	var declared tern.Snapshot
	switch {
	case c.SchemaFile != "":
		ddl, readErr := os.ReadFile(c.SchemaFile)
		if readErr != nil {
			return errors.Wrap(readErr, "could not read schema file")
		}
		declared, err = tern.ParseSchema(string(ddl))
	case c.ShadowURL != "":
		declared, err = appCtx.replayOnShadow(m, c.ShadowURL)
	default:
		declared, err = m.DeclaredSchema(appCtx.Ctx)
	}
	if err != nil {
		return err
	}

	divergences, err := m.Validate(appCtx.Ctx, declared)
	if err != nil {
		return err
	}

	if len(divergences) == 0 {
		appCtx.success("schema is valid")
		return nil
	}

	data := make([][]string, 0, len(divergences))
	for _, d := range divergences {
		data = append(data, []string{string(d.Kind), string(d.Object), d.Table, d.Name, d.Live, d.Declared})
	}

	if err := renderTable([]string{"Kind", "Object", "Table", "Name", "Live", "Declared"}, data, appCtx.Stdout); err != nil {
		return errors.Wrap(err, "could not render divergences")
	}

	return errors.Wrapf(ErrSchemaDiverged, "%d divergences", len(divergences))
}

func (appCtx *Context) replayOnShadow(m *tern.Migrator, url string) (snapshot tern.Snapshot, err error) {
	shadow, closer, err := appCtx.migratorFor(url)
	if err != nil {
		return snapshot, errors.Wrap(err, "could not open the shadow database")
	}
	defer closeMigrator(closer, &err)

	return m.ReplaySchema(appCtx.Ctx, shadow)
}

type VersionCmd struct {
	Add    VersionAddCmd    `kong:"cmd,help='Record versions as applied without running them.'"`
	Delete VersionDeleteCmd `kong:"cmd,help='Remove versions from the applied set without running them.',aliases='rm'"`
}

type VersionAddCmd struct {
	All      bool     `help:"Every known version."`
	Versions []string `arg:"" optional:"" help:"Versions to add."`
}

func (c *VersionAddCmd) Run(appCtx *Context) (err error) {
	if !c.All && len(c.Versions) == 0 {
		return ErrNoVersions
	}

	m, closer, err := appCtx.migrator()
	if err != nil {
		return err
	}
	defer closeMigrator(closer, &err)

	if c.All {
		if err := m.MarkAllApplied(appCtx.Ctx); err != nil {
			return err
		}
		appCtx.success("all versions are marked as applied")
		return nil
	}

	cfs, err := tern.CreateConfigurators(0, c.Versions)
	if err != nil {
		return err
	}

	if err := m.MarkApplied(appCtx.Ctx, cfs...); err != nil {
		return err
	}

	appCtx.success("marked as applied: %s", strings.Join(c.Versions, ", "))
	return nil
}

type VersionDeleteCmd struct {
	All      bool     `help:"Every applied version."`
	Versions []string `arg:"" optional:"" help:"Versions to delete."`
}

func (c *VersionDeleteCmd) Run(appCtx *Context) (err error) {
	if !c.All && len(c.Versions) == 0 {
		return ErrNoVersions
	}

	m, closer, err := appCtx.migrator()
	if err != nil {
		return err
	}
	defer closeMigrator(closer, &err)

	cfs, err := tern.CreateConfigurators(0, c.Versions)
	if err != nil {
		return err
	}
	if c.All {
		cfs = append(cfs, tern.WithAll())
	}

	if err := m.MarkReverted(appCtx.Ctx, cfs...); err != nil {
		return err
	}

	appCtx.success("versions are removed from the applied set")
	return nil
}

type StorageCmd struct {
	Sync StorageSyncCmd `kong:"cmd,help='Create the version table when it does not exist.'"`
	Drop StorageDropCmd `kong:"cmd,help='Drop the version table, the migrated schema is kept.'"`
}

type StorageSyncCmd struct{}

func (c *StorageSyncCmd) Run(appCtx *Context) (err error) {
	m, closer, err := appCtx.migrator()
	if err != nil {
		return err
	}
	defer closeMigrator(closer, &err)

	if err := m.EnsureStorage(appCtx.Ctx); err != nil {
		return err
	}

	appCtx.success("version table is in place")
	return nil
}

type StorageDropCmd struct{}

func (c *StorageDropCmd) Run(appCtx *Context) (err error) {
	m, closer, err := appCtx.migrator()
	if err != nil {
		return err
	}
	defer closeMigrator(closer, &err)

	if err := m.DropStorage(appCtx.Ctx); err != nil {
		return err
	}

	appCtx.success("version table is dropped")
	return nil
}

type CreateCmd struct {
	Name       string `arg:"" help:"Name of the migration, e.g. create_users_table."`
	NoRollback bool   `help:"Do not create the rollback file."`
}

// Run creates the files without connecting to the database
func (c *CreateCmd) Run(appCtx *Context) error {
	format, err := appCtx.cfg.Format()
	if err != nil {
		return err
	}

	if format != migration.TimestampFormat && format != migration.DatetimeFormat {
		return errors.Wrapf(ErrInvalidVersionFormat, "cannot generate %s versions, use timestamp or datetime", format)
	}

	s, err := source.NewLocalFSSource(appCtx.cfg.MigrationsFolder, nil, format)
	if err != nil {
		return err
	}

	if !s.IsValid() {
		return errors.Wrapf(ErrFolderInvalid, "%s", appCtx.cfg.MigrationsFolder)
	}

	v := migration.GenerateVersion(appCtx.Now, format)
	if s.AlreadyExists(v.Value, c.Name) {
		return errors.Wrapf(ErrMigrationAlreadyExists, "version [%s] name [%s]", v.Value, c.Name)
	}

	m, err := s.Create(v.Value, c.Name, !c.NoRollback)
	if err != nil {
		return err
	}

	appCtx.success("created migration [%s] in %s", m.Key, appCtx.cfg.MigrationsFolder)
	return nil
}

type InitCmd struct{}

// Run writes the configuration stub and creates the migrations folder,
// both are kept when they exist
func (c *InitCmd) Run(root *CLI, appCtx *Context) error {
	if FileExists(root.ConfigFile) {
		appCtx.warn("%s already exists", root.ConfigFile)
	} else {
		if err := InitCfg(root.ConfigFile); err != nil {
			return err
		}
		appCtx.success("created %s", root.ConfigFile)
	}

	if err := os.MkdirAll(appCtx.cfg.MigrationsFolder, 0755); err != nil {
		return errors.Wrapf(err, "could not create migrations folder [%s]", appCtx.cfg.MigrationsFolder)
	}

	return nil
}

func (appCtx *Context) printPlan(plan tern.Plan) error {
	if plan.Empty() {
		appCtx.success("nothing to do, target [%s]", plan.Target)
		return nil
	}

	data := make([][]string, 0, plan.Len())
	for i, s := range plan.Steps {
		data = append(data, []string{fmt.Sprint(i + 1), s.Direction.String(), s.Migration.Version.Value, s.Migration.Name})
	}

	if err := renderTable([]string{"#", "Direction", "Version", "Name"}, data, appCtx.Stdout); err != nil {
		return errors.Wrap(err, "could not render plan")
	}

	appCtx.success("%d steps %s to [%s]", plan.Len(), plan.Direction, plan.Target)
	return nil
}

func (appCtx *Context) printReport(report *tern.Report) {
	if report == nil {
		return
	}

	if report.Attempted == 0 {
		appCtx.success("nothing to do, target [%s]", report.Target)
		return
	}

	for _, s := range report.Steps {
		if s.Err != nil {
			continue
		}
		appCtx.success("%s [%s] %s in %s", s.Direction, s.Version, s.Name, s.Duration.Round(time.Millisecond))
	}

	if report.Failed() {
		appCtx.warn("%d of %d steps succeeded, run %s", report.Succeeded, report.Attempted, report.RunID)
		return
	}

	appCtx.success("%d steps done in %s, run %s", report.Succeeded, report.Duration.Round(time.Millisecond), report.RunID)
}
