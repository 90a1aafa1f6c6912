package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/metagraph/internal/config"
	"github.com/xkilldash9x/metagraph/internal/observability"
	"github.com/xkilldash9x/metagraph/internal/service"
)

const envPrefix = "METAGRAPH"

// app carries the state shared by one command tree. A fresh tree is built
// per execution so flags never leak between runs.
type app struct {
	v       *viper.Viper
	cfgFile string
	envFile string
	cfg     config.Interface
	factory service.ComponentFactory
}

// NewRootCommand builds the metagraph command tree with the production
// component factory.
func NewRootCommand() *cobra.Command {
	root, _ := newRootCmd(service.NewComponentFactory())
	return root
}

func newRootCmd(factory service.ComponentFactory) (*cobra.Command, *app) {
	a := &app{v: viper.New(), factory: factory}

	rootCmd := &cobra.Command{
		Use:           "metagraph",
		Short:         "Extracts org metadata and builds its dependency graph.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.metagraph/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	rootCmd.PersistentFlags().String("log-level", "", "override logger.level")
	_ = a.v.BindPFlag("logger.level", rootCmd.PersistentFlags().Lookup("log-level"))
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newExtractCmd(a),
		newAnalyzeCmd(a),
		newJobCmd(a),
		newComponentsCmd(a),
		newGraphCmd(a),
		newSearchCmd(a),
		newMigrateCmd(a),
		newVersionCmd(),
	)
	return rootCmd, a
}

// Execute runs the command tree against os.Args.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}

// initialize loads .env, the config file and the environment, then starts
// the logger.
func (a *app) initialize() error {
	if err := loadEnvFile(a.envFile); err != nil {
		return err
	}

	config.SetDefaults(a.v)
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			a.v.AddConfigPath(filepath.Join(home, ".metagraph"))
		}
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "metagraph"})
		return err
	}
	a.cfg = cfg

	observability.InitializeLogger(cfg.Logger())
	observability.GetLogger().Debug("Configuration loaded", zap.String("config_file", a.v.ConfigFileUsed()), zap.String("version", Version))
	return nil
}

// loadEnvFile applies a dotenv file without overriding variables that are
// already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("invalid env file path: %w", err)
	}
	if err := godotenv.Load(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", expanded, err)
	}
	return nil
}

// components builds the service stack for one command.
func (a *app) components(cmd *cobra.Command, inMemory bool) (*service.Components, error) {
	c, err := a.factory.Create(cmd.Context(), a.cfg, service.Options{InMemory: inMemory}, observability.GetLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return c, nil
}
