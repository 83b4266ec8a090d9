package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/tiercache/pkg/cache"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print changes to the cache directory as they happen",
	Long: paragraph(fmt.Sprintf("\n%s the cache directory and print a line for every entry that is written or removed, by any process. Stop with Ctrl+C.",
		keyword("Watch"))),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		dir := c.Dir()
		if err := c.Close(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return watchDir(ctx, dir, cmd.OutOrStdout())
	},
}

// watchDir reports entry changes in dir to w until ctx is done.
func watchDir(ctx context.Context, dir string, w io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("unable to watch %s: %w", dir, err)
	}
	log.Debug("Watching cache directory", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			line, ok := describeEvent(event)
			if !ok {
				continue
			}
			if _, err := fmt.Fprintf(w, "%s %s\n", styled(subtleStyle, time.Now().Format(time.TimeOnly)), line); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				log.Warn("Missed cache directory events", "err", err)
				continue
			}
			return fmt.Errorf("watch failed: %w", err)
		}
	}
}

// describeEvent turns a filesystem event into a line of output. Events on
// files that are not cache entries, such as in-progress temp files, are
// skipped.
func describeEvent(event fsnotify.Event) (string, bool) {
	id, ok := cache.IDFromPath(event.Name)
	if !ok {
		return "", false
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		return "stored  " + styled(keyStyle, id), true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return styled(expiredStyle, "removed ") + styled(keyStyle, id), true
	default:
		return "", false
	}
}
