package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/dictcache"
	"github.com/unkn0wn-root/dictcache/internal/app"
)

func warmCmd(open appFactory) *cobra.Command {
	var (
		file        string
		concurrency int
		pages       int
	)
	cmd := &cobra.Command{
		Use:   "warm [QUERY...]",
		Short: "Populate the sentence, word and kanji caches for a list of queries",
		RunE: withApp(open, func(cmd *cobra.Command, a *app.App, args []string) error {
			queries := args
			if file != "" {
				more, err := readQueries(file)
				if err != nil {
					return err
				}
				queries = append(queries, more...)
			}
			if len(queries) == 0 {
				return fmt.Errorf("no queries given")
			}
			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1, got %d", concurrency)
			}

			var done atomic.Int64
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(concurrency)
			for _, q := range queries {
				for page := 0; page < pages; page++ {
					g.Go(func() error {
						if _, err := a.Accessor.Sentences(ctx, q, page); err != nil {
							return fmt.Errorf("sentences %q: %w", q, err)
						}
						if _, err := a.Accessor.SearchWords(ctx, q, page); err != nil {
							return fmt.Errorf("words %q: %w", q, err)
						}
						done.Add(1)
						return nil
					})
				}
				g.Go(func() error {
					if _, err := a.Accessor.Kanji(ctx, q); err != nil {
						return fmt.Errorf("kanji %q: %w", q, err)
					}
					return nil
				})
			}
			err := g.Wait()
			a.Logger.Info("warm finished", dictcache.Fields{"queries": len(queries), "pages": done.Load(), "err": err})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "warmed %d queries (%d pages)\n", len(queries), done.Load())
			return err
		}),
	}
	cmd.Flags().StringVar(&file, "file", "", "read queries from this file, one per line")
	cmd.Flags().IntVar(&concurrency, "concurrency", 8, "parallel lookups")
	cmd.Flags().IntVar(&pages, "pages", 1, "pages per query")
	return cmd
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" && !strings.HasPrefix(q, "#") {
			out = append(out, q)
		}
	}
	return out, sc.Err()
}
