// Package main provides the entry point for the tiercache CLI application.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	homedir "github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/tiercache/pkg/cache"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	cacheName  string
	cacheDir   string
	capacity   int
	memory     string
	format     string
	compress   int
	hashKeys   bool

	rootCmd = &cobra.Command{
		Use:   "tiercache",
		Short: "Inspect and manage two-tier caches from the command line",
		Long: paragraph(
			fmt.Sprintf("\nInspect and manage %s caches: memory in front, one file per key behind.", keyword("two-tier")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("config") {
				viper.SetConfigFile(configFile)
				// A missing file is created by the config command.
				if err := viper.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("unable to read config file: %w", err)
				}
			}
			return validateOptions()
		},
	}
)

func validateOptions() error {
	// grab config values from Viper
	cacheName = viper.GetString("name")
	capacity = viper.GetInt("capacity")
	memory = viper.GetString("memory")
	format = viper.GetString("format")
	compress = viper.GetInt("compress")
	hashKeys = viper.GetBool("hash-keys")

	if cacheName == "" {
		return errors.New("cache name must not be empty")
	}
	if capacity < 1 {
		return fmt.Errorf("capacity must be at least 1, got %d", capacity)
	}
	if compress < 0 || compress > 22 {
		return fmt.Errorf("compression level must be between 0 and 22, got %d", compress)
	}
	switch memory {
	case cache.MemoryLRU, cache.MemoryRistretto:
	default:
		return fmt.Errorf("unknown memory policy %q: use %q or %q", memory, cache.MemoryLRU, cache.MemoryRistretto)
	}
	switch format {
	case cache.FormatGob, cache.FormatJSON, cache.FormatYAML:
	default:
		return fmt.Errorf("unknown format %q: use gob, json or yaml", format)
	}

	dir := viper.GetString("dir")
	if dir == "" {
		cacheDir = ""
		return nil
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return fmt.Errorf("unable to expand cache directory: %w", err)
	}
	cacheDir = expanded
	return nil
}

// cacheConfig builds the engine configuration from the resolved options.
func cacheConfig() *cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Directory = cacheDir
	cfg.MemoryCapacity = capacity
	cfg.MemoryPolicy = memory
	cfg.Format = format
	cfg.CompressionLevel = compress
	cfg.Logger = log.Default().WithPrefix("tiercache")
	if hashKeys {
		cfg.KeyCodec = cache.HashKeys{}
	}
	cfg.OnWriteError = func(key string, err error) {
		log.Warn("Could not persist entry", "key", key, "err", err)
	}
	return cfg
}

// openCache opens the configured cache. Callers must Close it so queued
// disk work is finished before the process exits.
func openCache() (*cache.Cache[string], error) {
	c, err := cache.New[string](cacheName, cacheConfig())
	if err != nil {
		return nil, fmt.Errorf("unable to open cache: %w", err)
	}
	return c, nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", configFile, "config file")
	flags.StringVarP(&cacheName, "name", "n", "default", "cache name")
	flags.StringVarP(&cacheDir, "dir", "d", "", "cache directory (default: user cache dir)")
	flags.IntVarP(&capacity, "capacity", "c", 1000, "entries held in memory")
	flags.StringVar(&memory, "memory", cache.MemoryLRU, "memory policy: lru or ristretto")
	flags.StringVarP(&format, "format", "f", cache.FormatGob, "file format: gob, json or yaml")
	flags.IntVar(&compress, "compress", 0, "zstd compression level (0 disables)")
	flags.BoolVar(&hashKeys, "hash-keys", false, "name files by key hash instead of sanitized key")

	// Config bindings
	_ = viper.BindPFlag("name", flags.Lookup("name"))
	_ = viper.BindPFlag("dir", flags.Lookup("dir"))
	_ = viper.BindPFlag("capacity", flags.Lookup("capacity"))
	_ = viper.BindPFlag("memory", flags.Lookup("memory"))
	_ = viper.BindPFlag("format", flags.Lookup("format"))
	_ = viper.BindPFlag("compress", flags.Lookup("compress"))
	_ = viper.BindPFlag("hash-keys", flags.Lookup("hash-keys"))

	viper.SetDefault("name", "default")
	viper.SetDefault("capacity", 1000)
	viper.SetDefault("memory", cache.MemoryLRU)
	viper.SetDefault("format", cache.FormatGob)

	rootCmd.AddCommand(
		getCmd, setCmd, rmCmd, clearCmd, sweepCmd,
		lsCmd, statsCmd, watchCmd,
		configCmd, manCmd,
	)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "tiercache")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "tiercache")}, dirs...)
	}

	if c := os.Getenv("TIERCACHE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("tiercache")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("tiercache")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		configFile = used
		return
	}

	configFile = filepath.Join(dirs[0], "tiercache.yml")
}
