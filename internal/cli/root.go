package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type options struct {
	version     string
	versionFile string
	dir         string
	repo        string
	linkDir     string
	configFile  string
	format      string
	timeout     time.Duration
	verbose     int
	force       bool
	quiet       bool
	check       bool
	dryRun      bool
	update      bool
	link        bool
	noLink      bool
}

// NewRootCmd builds the command tree. The install command stores its exit
// code in exitCode.
func NewRootCmd(deps Deps, exitCode *int) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "toolup",
		Short: "Install and update a prebuilt toolchain from GitHub releases",
		Long: `toolup resolves a requested version of one toolchain, inspects what is
already installed, and does the least work needed to get there: skip, install,
reinstall or update. A failed run never leaves a half-installed tree behind.`,
		Example: `  toolup                         # install the latest release
  toolup --version 1.4.0 --force # reinstall a specific version
  toolup --update                # move to the latest release
  toolup --check                 # exit 0 if installed, 3 if not
  toolup --dry-run --format json # describe the plan as JSON`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			*exitCode = runInstall(cmd, deps, opts)
			return nil
		},
	}

	f := rootCmd.Flags()
	f.StringVar(&opts.version, "version", "latest", "Version to install: latest, stable or an explicit version")
	f.StringVar(&opts.versionFile, "version-file", "", "Read the version from a file (first non-comment line)")
	f.StringVar(&opts.dir, "dir", "", "Install directory (default $XDG_DATA_HOME/toolup/<binary>)")
	f.StringVar(&opts.repo, "repo", "", "GitHub repository to install from (owner/name)")
	f.StringVar(&opts.linkDir, "link-dir", "", "Directory for the PATH link (default $XDG_BIN_HOME)")
	f.StringVar(&opts.configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/toolup/config.{toml,yaml})")
	f.StringVar(&opts.format, "format", "", "Report format: text, json or yaml")
	f.DurationVar(&opts.timeout, "timeout", 0, "How long to wait for another run's install lock")
	f.CountVarP(&opts.verbose, "verbose", "v", "Increase verbosity (-v DEBUG, -vv TRACE)")
	f.BoolVar(&opts.force, "force", false, "Reinstall even when the requested version is installed")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Only log warnings and errors")
	f.BoolVar(&opts.check, "check", false, "Report install state only (exit 3 when not installed)")
	f.BoolVar(&opts.dryRun, "dry-run", false, "Describe the plan without changing anything")
	f.BoolVar(&opts.update, "update", false, "Move an existing installation to the requested version")
	f.BoolVar(&opts.link, "link", false, "Link the binary onto PATH (default from config)")
	f.BoolVar(&opts.noLink, "no-link", false, "Do not link the binary onto PATH")

	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "toolup %s\n", Version)
		},
	}
}
