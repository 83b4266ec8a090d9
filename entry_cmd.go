package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/tiercache/pkg/cache"
)

var (
	copyValue bool
	ttl       time.Duration
	expireAt  string

	getCmd = &cobra.Command{
		Use:     "get KEY",
		Short:   "Print the value stored for a key",
		Example: paragraph("tiercache get session\ntiercache get --copy token"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			defer c.Close() //nolint:errcheck

			v, ok := c.Get(args[0])
			if !ok {
				return fmt.Errorf("key %q not found", args[0])
			}

			if copyValue {
				if err := clipboard.WriteAll(v); err != nil {
					return fmt.Errorf("unable to copy to clipboard: %w", err)
				}
				log.Debug("Copied value to clipboard", "key", args[0])
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
			return err
		},
	}

	setCmd = &cobra.Command{
		Use:   "set KEY [VALUE]",
		Short: "Store a value for a key",
		Long: paragraph(fmt.Sprintf("\n%s a value for a key. Without VALUE the value is read from stdin. Entries never expire unless --ttl or --at is given.",
			keyword("Store"))),
		Example: paragraph("tiercache set greeting hello\ntiercache set --ttl 10m session abc123\necho data | tiercache set blob"),
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			expiry, err := parseExpiry(cmd)
			if err != nil {
				return err
			}

			var value string
			if len(args) == 2 {
				value = args[1]
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("unable to read value from stdin: %w", err)
				}
				value = strings.TrimSuffix(string(b), "\n")
			}

			c, err := openCache()
			if err != nil {
				return err
			}
			defer c.Close() //nolint:errcheck

			if err := <-c.SetNotify(args[0], value, expiry); err != nil {
				return fmt.Errorf("unable to persist %q: %w", args[0], err)
			}
			log.Debug("Stored entry", "key", args[0], "expiry", expiry)
			return nil
		},
	}

	rmCmd = &cobra.Command{
		Use:     "rm KEY...",
		Aliases: []string{"remove", "del"},
		Short:   "Remove keys from the cache",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			for _, key := range args {
				c.Remove(key)
			}
			return c.Close()
		},
	}

	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry from the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			<-c.RemoveAll()
			if err := c.Close(); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Cleared", styled(keyStyle, c.Dir()))
			return err
		},
	}

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired entries from disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openCache()
			if err != nil {
				return err
			}
			c.SweepExpired()
			if err := c.Close(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Swept %d expired entries\n", c.Stats().Expirations)
			return err
		},
	}
)

// parseExpiry turns the --ttl and --at flags into an expiry policy.
func parseExpiry(cmd *cobra.Command) (cache.Expiry, error) {
	ttlSet, atSet := cmd.Flags().Changed("ttl"), cmd.Flags().Changed("at")
	switch {
	case ttlSet && atSet:
		return cache.Expiry{}, errors.New("cannot use both --ttl and --at")
	case ttlSet:
		return cache.ExpireAfter(ttl), nil
	case atSet:
		t, err := time.Parse(time.RFC3339, expireAt)
		if err != nil {
			return cache.Expiry{}, fmt.Errorf("invalid --at time: %w", err)
		}
		return cache.ExpireAt(t), nil
	default:
		return cache.NeverExpire(), nil
	}
}

func init() {
	getCmd.Flags().BoolVar(&copyValue, "copy", false, "also copy the value to the clipboard")
	setCmd.Flags().DurationVar(&ttl, "ttl", 0, "expire the entry after this duration")
	setCmd.Flags().StringVar(&expireAt, "at", "", "expire the entry at this RFC 3339 time")
}
