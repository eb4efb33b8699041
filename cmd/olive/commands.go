package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/anime-shed/olive-inspector-go/internal/catalog"
	"github.com/anime-shed/olive-inspector-go/internal/config"
	"github.com/anime-shed/olive-inspector-go/internal/container"
	apperrors "github.com/anime-shed/olive-inspector-go/internal/errors"
	"github.com/anime-shed/olive-inspector-go/internal/logger"
	"github.com/anime-shed/olive-inspector-go/pkg/models"

	"github.com/spf13/cobra"
)

// containerLoader builds the application graph for one command run
type containerLoader func(ctx context.Context) (*container.Container, error)

func loadContainer(ctx context.Context) (*container.Container, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	c, err := container.NewContainer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(getEnv("LOG_LEVEL", "warn"))
	return c, nil
}

type cli struct {
	out     io.Writer
	load    containerLoader
	asJSON  bool
	app     *container.Container
	timeout time.Duration
}

// runCLI executes args and releases the container even when a command fails
func runCLI(out io.Writer, load containerLoader, args []string) error {
	c := &cli{out: out, load: load}
	root := c.rootCmd()
	root.SetArgs(args)

	err := root.Execute()
	if c.app != nil {
		if closeErr := c.app.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "olive",
		Short:         "Olive leaf disease inspector",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			c.app = app
			return nil
		},
	}
	root.SetOut(c.out)
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().BoolVar(&c.asJSON, "json", false, "print JSON instead of text")

	root.AddCommand(c.sessionCmd(), c.historyCmd(), c.settingsCmd())
	return root
}

func (c *cli) sessionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Work with the current image and result"}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printSession(c.app.DetectionService().Session())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "select <image>",
		Short: "Select a working image (path, file:// or http(s):// URL)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.DetectionService().PickImage(cmd.Context(), args[0]); err != nil {
				return err
			}
			return c.printSession(c.app.DetectionService().Session())
		},
	})

	analyze := &cobra.Command{
		Use:   "analyze",
		Short: "Send the working image to the detection server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if c.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, c.timeout)
				defer cancel()
			}
			res, err := c.app.DetectionService().Analyze(ctx)
			if err != nil {
				return err
			}
			view := catalog.Describe(res.ImageRef, res.Outcome.Status, res.Outcome.Result)
			view.Discarded = res.Discarded
			return c.printAnalysis(view)
		},
	}
	analyze.Flags().DurationVar(&c.timeout, "timeout", 0, "overall deadline for the command (0 uses the analysis timeout only)")
	cmd.AddCommand(analyze)

	cmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Save the current result to history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := c.app.DetectionService().SaveToHistory(cmd.Context())
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.printJSON(entry)
			}
			fmt.Fprintf(c.out, "Saved entry %d (%d leaves)\n", entry.ID, entry.Result.LeafCount)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Clear the working image and result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.DetectionService().ResetSession(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Session cleared")
			return nil
		},
	})

	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "history", Short: "Browse saved analyses"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved analyses, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := c.app.DetectionService().History(cmd.Context())
			if c.asJSON {
				return c.printJSON(models.HistoryListResponse{Count: len(entries), Entries: entries})
			}
			if len(entries) == 0 {
				fmt.Fprintln(c.out, "No saved analyses")
				return nil
			}
			w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDATE\tLEAVES\tIMAGE")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", e.ID, e.Result.Date.Local().Format("2006-01-02 15:04"), e.Result.LeafCount, e.ImageURI)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one saved analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			entry, err := c.app.DetectionService().HistoryEntry(cmd.Context(), id)
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.printJSON(entry)
			}
			fmt.Fprintf(c.out, "Entry %d saved %s\nImage: %s\n", entry.ID, entry.Result.Date.Local().Format(time.RFC1123), entry.ImageURI)
			leaves := make([]models.LeafFinding, 0, len(entry.Result.Leaves))
			for _, l := range entry.Result.Leaves {
				leaves = append(leaves, models.LeafFinding{ClassName: l.ClassName, Confidence: l.Confidence})
			}
			c.printLeaves(catalog.Annotate(leaves), entry.Result.Note)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one saved analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := c.app.DetectionService().DeleteHistoryEntry(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Deleted entry %d\n", id)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every saved analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.DetectionService().ClearHistory(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "History cleared")
			return nil
		},
	})

	return cmd
}

func (c *cli) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "settings", Short: "View and change settings"}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printSettings(c.app.SettingsService().Get(cmd.Context()))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-server <ip[:port]>",
		Short: "Set the detection server address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.app.SettingsService().SetServerAddress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printSettings(s)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "language <fr|en|ar>",
		Short:     "Set the interface language",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"fr", "en", "ar"},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.app.SettingsService().SetLanguage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printSettings(s)
		},
	})

	cmd.AddCommand(c.toggleCmd("dark-mode", "Turn dark mode on or off", func(ctx context.Context, v *bool) (models.Settings, error) {
		if v == nil {
			return c.app.SettingsService().ToggleDarkMode(ctx)
		}
		return c.app.SettingsService().SetDarkMode(ctx, *v)
	}))
	cmd.AddCommand(c.toggleCmd("notifications", "Turn notifications on or off", func(ctx context.Context, v *bool) (models.Settings, error) {
		if v == nil {
			return c.app.SettingsService().ToggleNotifications(ctx)
		}
		return c.app.SettingsService().SetNotifications(ctx, *v)
	}))

	return cmd
}

// toggleCmd flips a flag, or sets it when given on|off
func (c *cli) toggleCmd(use, short string, apply func(context.Context, *bool) (models.Settings, error)) *cobra.Command {
	return &cobra.Command{
		Use:       use + " [on|off]",
		Short:     short,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var value *bool
			if len(args) == 1 {
				v, err := parseSwitch(args[0])
				if err != nil {
					return err
				}
				value = &v
			}
			s, err := apply(cmd.Context(), value)
			if err != nil {
				return err
			}
			return c.printSettings(s)
		},
	}
}

func (c *cli) printSession(state models.SessionState) error {
	if c.asJSON {
		return c.printJSON(state)
	}
	if !state.HasImage() {
		fmt.Fprintln(c.out, "No image selected")
		return nil
	}
	fmt.Fprintf(c.out, "Image: %s\n", *state.Image)
	if state.Result == nil {
		fmt.Fprintln(c.out, "Not analyzed yet")
		return nil
	}
	view := catalog.Describe(*state.Image, catalog.StatusOf(state.Result), state.Result)
	c.printLeaves(view.Leaves, view.Note)
	return nil
}

func (c *cli) printAnalysis(view models.AnalysisResponse) error {
	if c.asJSON {
		return c.printJSON(view)
	}
	if view.Discarded {
		fmt.Fprintln(c.out, "Result discarded: the session changed while the analysis was running")
		return nil
	}
	if view.Status == models.OutcomeNoDetection {
		fmt.Fprintln(c.out, "No leaves detected")
		if view.Note != "" {
			fmt.Fprintf(c.out, "Note: %s\n", view.Note)
		}
		return nil
	}
	fmt.Fprintf(c.out, "Detected %d leaves\n", view.LeafCount)
	c.printLeaves(view.Leaves, view.Note)
	return nil
}

func (c *cli) printLeaves(leaves []models.LeafView, note string) {
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LEAF\tCLASS\tCONFIDENCE\tCONDITION\tSEVERITY")
	for _, l := range leaves {
		fmt.Fprintf(w, "%d\t%s\t%.1f%%\t%s\t%s\n", l.Number, l.ClassName, l.Confidence, l.Disease, l.Severity)
	}
	w.Flush()
	if note != "" {
		fmt.Fprintf(c.out, "Note: %s\n", note)
	}
}

func (c *cli) printSettings(s models.Settings) error {
	if c.asJSON {
		return c.printJSON(s)
	}
	fmt.Fprintf(c.out, "Server:        %s\n", s.ServerAddress)
	fmt.Fprintf(c.out, "Language:      %s\n", s.Language)
	fmt.Fprintf(c.out, "Dark mode:     %s\n", onOff(s.DarkMode))
	fmt.Fprintf(c.out, "Notifications: %s\n", onOff(s.Notifications))
	return nil
}

func (c *cli) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, apperrors.NewValidationError(fmt.Sprintf("invalid history id %q", s), err)
	}
	return id, nil
}

func parseSwitch(s string) (bool, error) {
	switch s {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, apperrors.NewValidationError(fmt.Sprintf("expected on or off, got %q", s), nil)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
