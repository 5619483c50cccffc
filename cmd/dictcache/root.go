package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/dictcache/internal/app"
	"github.com/unkn0wn-root/dictcache/internal/config"
	"github.com/unkn0wn-root/dictcache/model"
)

type appFactory func(cmd *cobra.Command) (*app.App, error)

// openApp loads configuration (flags win over the environment) and builds
// the app.
func openApp(cmd *cobra.Command) (*app.App, error) {
	var files []string
	if f, _ := cmd.Flags().GetString("env-file"); f != "" {
		files = append(files, f)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		_ = os.Setenv("LOG_LEVEL", lvl)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, app.Options{})
}

func newRootCmd(open appFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "dictcache",
		Short:         "Query the jibiki dictionary through its cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("env-file", "", "load environment from this file instead of ./.env")
	root.PersistentFlags().String("log-level", "", "override LOG_LEVEL")

	root.AddCommand(
		sentencesCmd(open),
		wordsCmd(open),
		kanjiCmd(open),
		entryCmd(open),
		userCmd(open),
		registerCmd(open),
		loginCmd(open),
		whoamiCmd(open),
		logoutCmd(open),
		bookmarkCmd(open),
		warmCmd(open),
	)
	return root
}

// withApp opens the app for one command and always closes it.
func withApp(open appFactory, run func(cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 5*time.Second)
			defer cancel()
			_ = a.Close(ctx)
		}()
		return run(cmd, a, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sentencesCmd(open appFactory) *cobra.Command {
	var page, minLen, maxLen int
	cmd := &cobra.Command{
		Use:   "sentences QUERY",
		Short: "Search example sentences",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(open, func(cmd *cobra.Command, a *app.App, args []string) error {
			r, err := a.Accessor.SearchSentences(cmd.Context(), args[0], page, minLen, maxLen)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r.Items())
		}),
	}
	cmd.Flags().IntVar(&page, "page", 0, "result page")
	cmd.Flags().IntVar(&minLen, "min", 0, "minimum sentence length")
	cmd.Flags().IntVar(&maxLen, "max", 0, "maximum sentence length (0 = none)")
	return cmd
}

func wordsCmd(open appFactory) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "words QUERY",
		Short: "Search dictionary entries",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(open, func(cmd *cobra.Command, a *app.App, args []string) error {
			r, err := a.Accessor.SearchWords(cmd.Context(), args[0], page)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r.Items())
		}),
	}
	cmd.Flags().IntVar(&page, "page", 0, "result page")
	return cmd
}

func kanjiCmd(open appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "kanji QUERY",
		Short: "Search kanji by meaning, reading or literal",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(open, func(cmd *cobra.Command, a *app.App, args []string) error {
			r, err := a.Accessor.Kanji(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r.Items())
		}),
	}
}

func entryCmd(open appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "entry ID",
		Short: "Show one dictionary entry",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(open, func(cmd *cobra.Command, a *app.App, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("entry id: %w", err)
			}
			w, ok, err := a.Accessor.Entry(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("entry %d not found", id)
			}
			return printJSON(cmd.OutOrStdout(), w)
		}),
	}
}

func userCmd(open appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "user SNOWFLAKE",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(open, func(cmd *cobra.Command, a *app.App, args []string) error {
			id, err := model.ParseSnowflake(args[0])
			if err != nil {
				return fmt.Errorf("snowflake: %w", err)
			}
			u, ok, err := a.Accessor.User(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("user %s not found", id)
			}
			return printJSON(cmd.OutOrStdout(), u)
		}),
	}
}

func registerCmd(open appFactory) *cobra.Command {
	var spec model.CreateUserSpec
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: withApp(open, func(cmd *cobra.Command, a *app.App, _ []string) error {
			id, err := a.Accessor.CreateUser(cmd.Context(), spec)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"snowflake": id})
		}),
	}
	cmd.Flags().StringVar(&spec.Email, "email", "", "email")
	cmd.Flags().StringVar(&spec.Username, "username", "", "display name")
	cmd.Flags().StringVar(&spec.Password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func loginCmd(open appFactory) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check credentials and print a session token",
		Args:  cobra.NoArgs,
		RunE: withApp(open, func(cmd *cobra.Command, a *app.App, _ []string) error {
			tok, ok, err := a.Accessor.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("invalid credentials")
			}
			return printJSON(cmd.OutOrStdout(), tok)
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func whoamiCmd(open appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami TOKEN",
		Short: "Resolve a session token to its user",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(open, func(cmd *cobra.Command, a *app.App, args []string) error {
			u, ok, err := a.Accessor.Me(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("token owner no longer exists")
			}
			return printJSON(cmd.OutOrStdout(), u)
		}),
	}
}

func logoutCmd(open appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "logout TOKEN",
		Short: "Revoke a session token",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(open, func(cmd *cobra.Command, a *app.App, args []string) error {
			return a.Accessor.Logout(cmd.Context(), args[0])
		}),
	}
}

func bookmarkCmd(open appFactory) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "bookmark TOKEN KIND ID",
		Short: "Add or remove a bookmark (KIND is word, kanji or sentence)",
		Args:  cobra.ExactArgs(3),
		RunE: withApp(open, func(cmd *cobra.Command, a *app.App, args []string) error {
			kind, err := model.ParseBookmarkKind(args[1])
			if err != nil {
				return err
			}
			id, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid id %q", args[2])
			}
			if remove {
				return a.Accessor.RemoveBookmark(cmd.Context(), args[0], kind, id)
			}
			return a.Accessor.AddBookmark(cmd.Context(), args[0], kind, id)
		}),
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "remove instead of add")
	return cmd
}
