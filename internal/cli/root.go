package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ignaciocaff/spbind/internal/config"
	"github.com/ignaciocaff/spbind/internal/logging"
)

var (
	Version    string
	Commit     string
	CommitDate string
)

type rootOptions struct {
	cfgFile   string
	logLevel  string
	logFormat string
}

// NewRootCommand returns the spbind command tree.
func NewRootCommand() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "spbind",
		Short: "spbind inspects and checks stored-procedure binding configurations",
		Long: "spbind loads the datasource and procedure-key configuration used by the binding " +
			"engine, validates it, checks connectivity of every datasource and lists the " +
			"procedure keys with their call targets.",
		SilenceUsage: true,
		Version:      version(),
	}

	cmd.PersistentFlags().StringVar(&o.cfgFile, "config", "spbind.yml", "config file")
	cmd.PersistentFlags().StringVar(&o.logFormat, "log-format", "", "logging format [text|json], overrides log.format")
	cmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "",
		fmt.Sprintf(
			"logging level %s|%s|%s|%s, overrides log.level",
			zerolog.LevelDebugValue,
			zerolog.LevelInfoValue,
			zerolog.LevelWarnValue,
			zerolog.LevelErrorValue,
		),
	)

	cmd.AddCommand(newValidateCommand(o))
	cmd.AddCommand(newPingCommand(o))
	cmd.AddCommand(newCallsCommand(o))
	return cmd
}

// load reads the configuration and builds the logger, letting flags override
// the file's log section.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	level, format := cfg.Log.Level, cfg.Log.Format
	if o.logLevel != "" {
		level = o.logLevel
	}
	if o.logFormat != "" {
		format = o.logFormat
	}
	logger, err := logging.NewWithWriter(cmd.ErrOrStderr(), level, format)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if Commit == "" {
					Commit = setting.Value
				}
			case "vcs.time":
				if CommitDate == "" {
					CommitDate = setting.Value
				}
			}
		}
	}
	if Version != "" {
		return fmt.Sprintf("%s %s %s", Version, Commit, CommitDate)
	}
	return fmt.Sprintf("%s %s", Commit, CommitDate)
}
