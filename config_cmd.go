package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# cache name; each name gets its own directory
name: "default"
# cache directory (default: the user cache dir)
# dir: "~/.cache/tiercache/default"
# entries held in memory
capacity: 1000
# memory policy: lru or ristretto
memory: "lru"
# file format: gob, json or yaml
format: "gob"
# zstd compression level, 0 disables compression
compress: 0
# name files by key hash so distinct keys never share a file
hash-keys: false
`

// editorAppName is passed to the editor package for its messages.
const editorAppName = "Tiercache"

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Edit the tiercache config file",
	Long:    paragraph(fmt.Sprintf("\n%s the tiercache config file in $EDITOR. A default file is written first if none exists.", keyword("Edit"))),
	Example: paragraph("tiercache config\ntiercache config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}
		if err := editConfig(); err != nil {
			return err
		}

		_, err := fmt.Fprintln(cmd.OutOrStdout(), "Wrote config file to:", configFile)
		return err
	},
}

// editConfig opens configFile in the user's editor and waits for it to exit.
func editConfig() error {
	c, err := editor.Cmd(editorAppName, configFile)
	if err != nil {
		return fmt.Errorf("unable to open editor: %w", err)
	}
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("editor exited with an error: %w", err)
	}
	return nil
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
