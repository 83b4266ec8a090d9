package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache location and disk usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		entries := 0
		for range c.Keys() {
			entries++
		}
		s := c.Stats()

		w := cmd.OutOrStdout()
		fields := []struct{ name, value string }{
			{"Name", c.Name()},
			{"Directory", c.Dir()},
			{"Entries", humanize.Comma(int64(entries))},
			{"Disk usage", humanize.Bytes(uint64(s.DiskBytes))}, //nolint:gosec
			{"Memory", fmt.Sprintf("%s, %s entries", memory, humanize.Comma(int64(capacity)))},
			{"Format", formatLabel()},
		}
		for _, f := range fields {
			if _, err := fmt.Fprintf(w, "%-11s %s\n", styled(keyStyle, f.name+":"), f.value); err != nil {
				return err
			}
		}
		return nil
	},
}

func formatLabel() string {
	label := format
	if compress > 0 {
		label += fmt.Sprintf(" + zstd level %d", compress)
	}
	if hashKeys {
		label += ", hashed keys"
	}
	return label
}
