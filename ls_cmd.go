package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/tiercache/pkg/cache"
)

const maxValueWidth = 40

var (
	filter string

	lsCmd = &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List valid entries on disk",
		Long: paragraph(fmt.Sprintf("\n%s the entries persisted on disk. Expired entries are purged as they are found.",
			keyword("List"))),
		Example: paragraph("tiercache ls\ntiercache ls --filter sess"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			defer c.Close() //nolint:errcheck

			rows := collectRows(c, filter)
			return printRows(cmd.OutOrStdout(), rows, time.Now())
		},
	}
)

// row is one listed entry.
type row struct {
	id    string
	entry cache.Entry[string]
}

// collectRows gathers the valid entries of c. A non-empty pattern keeps the
// identifiers that fuzzy-match it, best match first; otherwise rows are
// sorted by identifier.
func collectRows(c *cache.Cache[string], pattern string) []row {
	var rows []row
	for id, e := range c.All() {
		rows = append(rows, row{id: id, entry: e})
	}

	if pattern == "" {
		slices.SortFunc(rows, func(a, b row) int { return strings.Compare(a.id, b.id) })
		return rows
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.id
	}
	matches := fuzzy.Find(pattern, ids)
	filtered := make([]row, 0, len(matches))
	for _, m := range matches {
		filtered = append(filtered, rows[m.Index])
	}
	return filtered
}

func printRows(w io.Writer, rows []row, now time.Time) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, styled(subtleStyle, "No entries."))
		return err
	}

	width := 0
	for _, r := range rows {
		width = max(width, len(r.id))
	}

	for _, r := range rows {
		value := strings.ReplaceAll(r.entry.Value, "\n", " ")
		value = truncate.StringWithTail(value, maxValueWidth, "…")
		line := fmt.Sprintf("%s  %-*s  %s",
			styled(keyStyle, fmt.Sprintf("%-*s", width, r.id)),
			maxValueWidth, value,
			styled(subtleStyle, describeExpiry(r.entry.ExpiresAt, now)))
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}

// describeExpiry renders an expiry time relative to now.
func describeExpiry(at, now time.Time) string {
	if at.Equal(cache.Never) {
		return "never expires"
	}
	return "expires " + humanize.RelTime(at, now, "ago", "from now")
}

func init() {
	lsCmd.Flags().StringVar(&filter, "filter", "", "fuzzy filter on keys")
}
