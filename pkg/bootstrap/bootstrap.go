// Package bootstrap loads configuration before cobra runs, so that global
// flags and repository-local settings are honoured by every command.
package bootstrap

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"thoreinstein.com/shipwright/pkg/config"
)

// RepoConfigFile is the repository-local config merged over the user config.
const RepoConfigFile = ".shipwright.toml"

// EnvPrefix prefixes environment overrides such as SHIPWRIGHT_SERVER_PORT.
const EnvPrefix = "SHIPWRIGHT"

var (
	lastLoadedConfig  string
	lastLoadedVerbose bool
	loadedConfig      *config.Config

	// stderr receives config notices; tests swap it out.
	stderr io.Writer = os.Stderr
)

// PreParseGlobalFlags scans args for --config and --verbose before cobra
// runs. It stops at the first non-flag argument or at "--".
func PreParseGlobalFlags(args []string) (string, bool) {
	var cfgFile string
	var verbose bool

	for i := 1; i < len(args); i++ {
		arg := args[i]

		if arg == "--" {
			break
		}
		if !strings.HasPrefix(arg, "-") {
			break
		}

		switch {
		case arg == "--config" || arg == "-C":
			if i+1 < len(args) {
				cfgFile = args[i+1]
				i++
			}
		case strings.HasPrefix(arg, "--config="):
			cfgFile = strings.TrimPrefix(arg, "--config=")
		case strings.HasPrefix(arg, "-C="):
			cfgFile = strings.TrimPrefix(arg, "-C=")
		case strings.HasPrefix(arg, "-C") && len(arg) > 2:
			cfgFile = arg[2:]
		case arg == "--verbose" || arg == "-v":
			verbose = true
		}
	}

	return cfgFile, verbose
}

// InitConfig reads the config file, the repository-local overrides and the
// environment, in that order of increasing precedence.
func InitConfig(cfgFile string, verbose bool) (*config.Config, error) {
	if os.Getenv("GO_TEST") != "true" && loadedConfig != nil && cfgFile == lastLoadedConfig && verbose == lastLoadedVerbose {
		return loadedConfig, nil
	}

	viper.Reset()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		path, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		viper.AddConfigPath(filepath.Dir(path))
		viper.SetConfigType("toml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	} else if verbose {
		fmt.Fprintln(stderr, "Using config file:", viper.ConfigFileUsed())
	}

	LoadRepoLocalConfig(verbose)

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	for _, w := range config.CheckSecurityWarnings(cfg) {
		fmt.Fprintf(stderr, "Warning: %s\n", w.Message)
	}

	lastLoadedConfig = cfgFile
	lastLoadedVerbose = verbose
	loadedConfig = cfg

	return cfg, nil
}

// LoadRepoLocalConfig merges .shipwright.toml from the git root and, when
// different, the working directory.
func LoadRepoLocalConfig(verbose bool) {
	var paths []string

	if gitRoot, err := FindGitRoot(); err == nil && gitRoot != "" {
		paths = append(paths, filepath.Join(gitRoot, RepoConfigFile))
		if cwd, _ := os.Getwd(); cwd != gitRoot {
			paths = append(paths, RepoConfigFile)
		}
	} else {
		paths = append(paths, RepoConfigFile)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}

		local := viper.New()
		local.SetConfigFile(path)
		if err := local.ReadInConfig(); err != nil {
			if verbose {
				fmt.Fprintf(stderr, "Warning: could not read local config %s: %v\n", path, err)
			}
			continue
		}

		if verbose {
			fmt.Fprintf(stderr, "Using repository config: %s\n", path)
		}

		if err := viper.MergeConfigMap(local.AllSettings()); err != nil && verbose {
			fmt.Fprintf(stderr, "Warning: could not merge local config: %v\n", err)
		}
	}
}

// FindGitRoot walks up from the working directory to the nearest checkout.
// It returns "" without error outside a repository.
func FindGitRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			if info.IsDir() || info.Mode().IsRegular() {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Reset clears the cached configuration.
func Reset() {
	lastLoadedConfig = ""
	lastLoadedVerbose = false
	loadedConfig = nil
}
