package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/store"
)

var pushFrom string

func init() {
	rootCmd.AddCommand(wordsCmd)
	wordsCmd.AddCommand(wordsAddCmd, wordsRemoveCmd, wordsListCmd, wordsSyncCmd, wordsPushCmd)
	wordsPushCmd.Flags().StringVar(&pushFrom, "from", "", "SQLite block-list to copy from (required)")
	wordsPushCmd.MarkFlagRequired("from")
}

var wordsCmd = &cobra.Command{
	Use:   "words",
	Short: "Manage the banned word list",
}

var wordsAddCmd = &cobra.Command{
	Use:   "add <word>...",
	Short: "Add banned words",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd.Context(), func(ctx context.Context, b *backend) error {
			for _, w := range args {
				added, err := b.words.AddWord(ctx, w)
				if err != nil {
					return fmt.Errorf("add %q: %w", w, err)
				}
				if added {
					fmt.Printf("added %q\n", w)
				} else {
					fmt.Printf("%q already present\n", w)
				}
			}
			return nil
		})
	},
}

var wordsRemoveCmd = &cobra.Command{
	Use:     "remove <word>...",
	Aliases: []string{"rm"},
	Short:   "Remove banned words",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd.Context(), func(ctx context.Context, b *backend) error {
			for _, w := range args {
				removed, err := b.words.RemoveWord(ctx, w)
				if err != nil {
					return fmt.Errorf("remove %q: %w", w, err)
				}
				if removed {
					fmt.Printf("removed %q\n", w)
				} else {
					fmt.Printf("%q not found\n", w)
				}
			}
			return nil
		})
	},
}

var wordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the banned word list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd.Context(), func(ctx context.Context, b *backend) error {
			var words []string
			var err error
			if b.cached != nil {
				words, err = b.cached.ListWords(ctx)
			} else {
				words, err = b.words.BannedWords(ctx)
			}
			if err != nil {
				return err
			}
			for _, w := range words {
				fmt.Println(w)
			}
			return nil
		})
	},
}

var wordsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild the Redis set from Postgres",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if sqlitePath != "" {
			return errors.New("sync works on the shared store; drop --sqlite")
		}
		return withBackend(cmd.Context(), func(ctx context.Context, b *backend) error {
			n, err := b.cached.Sync(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("published %d words to %s\n", n, store.RedisKey)
			return nil
		})
	},
}

var wordsPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Copy a local SQLite block-list into the shared store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if sqlitePath != "" {
			return errors.New("push writes to the shared store; use --from for the SQLite file")
		}
		local, err := store.OpenSQLite(pushFrom)
		if err != nil {
			return err
		}
		defer local.Close()

		return withBackend(cmd.Context(), func(ctx context.Context, b *backend) error {
			words, err := local.BannedWords(ctx)
			if err != nil {
				return err
			}
			added := 0
			for _, w := range words {
				ok, err := b.words.AddWord(ctx, w)
				if err != nil {
					return fmt.Errorf("push %q: %w", w, err)
				}
				if ok {
					added++
				}
			}
			fmt.Printf("pushed %d words (%d new)\n", len(words), added)
			return nil
		})
	},
}

func withBackend(parent context.Context, fn func(ctx context.Context, b *backend) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	var cfg *config.Config
	if sqlitePath == "" {
		loader, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loader.Config()
	}
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()
	return fn(ctx, b)
}
