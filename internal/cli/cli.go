package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/denismitr/tern/v4"
	"github.com/denismitr/tern/v4/migration"
	"github.com/logrusorgru/aurora/v3"
	"github.com/pkg/errors"
)

const metricsNamespace = "tern"

// Context carries the process environment to the commands
type Context struct {
	Ctx    context.Context
	Stdout io.Writer
	Stderr io.Writer
	// Color enables ANSI colours, usually when stdout is a terminal
	Color bool
	Now   migration.ClockFunc

	cfg       Config
	verbose   bool
	slog      bool
	collector *tern.Metrics
}

// CLI is the command line interface of tern
type CLI struct {
	Migrate  MigrateCmd  `kong:"cmd,help='Migrate the database to a target version.'"`
	Rollback RollbackCmd `kong:"cmd,help='Roll back applied migrations, newest first.'"`
	Refresh  RefreshCmd  `kong:"cmd,help='Roll back and migrate to the latest version again.'"`
	Status   StatusCmd   `kong:"cmd,help='Show known and applied versions.'"`
	Validate ValidateCmd `kong:"cmd,help='Compare the live schema with the declared one.'"`
	Version  VersionCmd  `kong:"cmd,help='Add or delete applied versions without running migrations.'"`
	Storage  StorageCmd  `kong:"cmd,help='Manage the version table.'"`
	Create   CreateCmd   `kong:"cmd,help='Create empty migration files.'"`
	Init     InitCmd     `kong:"cmd,help='Create a configuration file and the migrations folder.'"`

	ConfigFile  string        `kong:"default='${configFile}',help='Path to the tern configuration file.'"`
	DatabaseURL string        `kong:"name='database-url',short='d',help='Database URL: sqlite://, sqlite3://, mysql:// or postgres://.'"`
	Folder      string        `kong:"help='Migrations folder.'"`
	Table       string        `kong:"help='Name of the version table.'"`
	Timeout     time.Duration `kong:"default='2m',help='Timeout of the whole command.'"`
	Verbose     bool          `kong:"short='v',help='Print executed SQL and debug messages.'"`
	LogFormat   string        `kong:"enum='text,slog',default='text',help='Log output format.'"`
	NoColor     bool          `kong:"help='Disable colored output.'"`
	MetricsFile string        `kong:"help='Write Prometheus metrics in the text format to this file.'"`

	kong *kong.Kong
	kctx *kong.Context
}

// New initializes the command-line interface
func New(options ...kong.Option) (*CLI, error) {
	c := &CLI{}

	options = append([]kong.Option{
		kong.Name("tern"),
		kong.Description("Database migrations with versioning, planning and schema validation."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			Summary:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"configFile": DefaultConfigFile},
	}, options...)

	kparser, err := kong.New(c, options...)
	if err != nil {
		return nil, errors.Wrap(err, "failed creating the kong parser")
	}

	c.kong = kparser

	return c, nil
}

// Parse the given command line arguments, it must be called before Execute
func (c *CLI) Parse(args []string) error {
	kctx, err := c.kong.Parse(args)
	if err != nil {
		return errors.Wrap(err, "failed parsing CLI arguments")
	}
	c.kctx = kctx

	return nil
}

// Command returns the full path of the parsed command
func (c *CLI) Command() string {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}

	var cmdPath []string
	for _, p := range c.kctx.Path {
		if p.Command != nil {
			cmdPath = append(cmdPath, p.Command.Name)
		}
	}

	return strings.Join(cmdPath, " ")
}

// Execute runs the parsed command
func (c *CLI) Execute(appCtx *Context) (err error) {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}

	c.kong.Stdout = appCtx.Stdout
	c.kong.Stderr = appCtx.Stderr

	cfg, err := c.config()
	if err != nil {
		return err
	}

	appCtx.cfg = cfg
	appCtx.verbose = c.Verbose
	appCtx.slog = c.LogFormat == "slog"
	if c.NoColor {
		appCtx.Color = false
	}
	if appCtx.Now == nil {
		appCtx.Now = time.Now
	}
	if appCtx.Ctx == nil {
		appCtx.Ctx = context.Background()
	}

	if cfg.MetricsFile != "" {
		appCtx.collector = tern.NewMetrics(metricsNamespace)
		defer func() {
			if writeErr := appCtx.collector.WriteTextfile(cfg.MetricsFile); writeErr != nil && err == nil {
				err = writeErr
			}
		}()
	}

	ctx, cancel := context.WithTimeout(appCtx.Ctx, c.Timeout)
	defer cancel()
	appCtx.Ctx = ctx

	return c.kctx.Run(appCtx)
}

// config applies the flags on top of the file and the environment
func (c *CLI) config() (Config, error) {
	cfg, err := LoadConfig(c.ConfigFile)
	if err != nil {
		return cfg, err
	}

	if c.DatabaseURL != "" {
		cfg.DatabaseURL = c.DatabaseURL
	}
	if c.Folder != "" {
		cfg.MigrationsFolder = c.Folder
	}
	if c.Table != "" {
		cfg.MigrationsTable = c.Table
	}
	if c.MetricsFile != "" {
		cfg.MetricsFile = c.MetricsFile
	}

	return cfg, nil
}

// migrator opens the configured database, close it with the returned closer
func (appCtx *Context) migrator() (*tern.Migrator, tern.CloserFunc, error) {
	return appCtx.migratorFor(appCtx.cfg.DatabaseURL)
}

func (appCtx *Context) migratorFor(url string) (*tern.Migrator, tern.CloserFunc, error) {
	format, err := appCtx.cfg.Format()
	if err != nil {
		return nil, nil, err
	}

	opened, err := openDatabase(url, appCtx.cfg.MigrationsTable)
	if err != nil {
		return nil, nil, err
	}

	opts := []tern.OptionFunc{
		opened.option,
		tern.UseLocalFolderSource(appCtx.cfg.MigrationsFolder, tern.WithVersionFormat(format)),
		appCtx.loggerOption(),
	}
	if appCtx.collector != nil {
		opts = append(opts, tern.UseMetrics(appCtx.collector))
	}

	m, closer, err := tern.NewMigrator(opts...)
	if err != nil {
		_ = opened.db.Close()
		return nil, nil, err
	}

	return m, func() error {
		closeErr := closer()
		if dbErr := opened.db.Close(); dbErr != nil && closeErr == nil {
			closeErr = dbErr
		}
		return closeErr
	}, nil
}

func (appCtx *Context) loggerOption() tern.OptionFunc {
	switch {
	case appCtx.slog:
		return tern.UseSlogLogger(appCtx.Stderr, !appCtx.Color, appCtx.verbose, appCtx.verbose)
	case appCtx.Color:
		return tern.UseColorLogger(log.New(appCtx.Stdout, "", 0), appCtx.verbose, appCtx.verbose)
	default:
		return tern.UseLogger(log.New(appCtx.Stdout, "", 0), appCtx.verbose, appCtx.verbose)
	}
}

func (appCtx *Context) success(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if appCtx.Color {
		_, _ = fmt.Fprintln(appCtx.Stdout, aurora.Green("tern:"), msg)
		return
	}
	_, _ = fmt.Fprintln(appCtx.Stdout, "tern:", msg)
}

func (appCtx *Context) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if appCtx.Color {
		_, _ = fmt.Fprintln(appCtx.Stdout, aurora.Yellow("tern:"), msg)
		return
	}
	_, _ = fmt.Fprintln(appCtx.Stdout, "tern:", msg)
}

// FormatError renders an error for the terminal
func FormatError(err error, color bool) string {
	if color {
		return fmt.Sprintf("%s %s", aurora.Red("tern:"), err)
	}
	return fmt.Sprintf("tern: %s", err)
}

func closeMigrator(closer tern.CloserFunc, err *error) {
	if closeErr := closer(); closeErr != nil && *err == nil {
		*err = closeErr
	}
}
