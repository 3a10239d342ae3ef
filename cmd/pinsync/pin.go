package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/pinsync/pinsync/internal/schema"
	"github.com/pinsync/pinsync/internal/store"
	"github.com/pinsync/pinsync/internal/summarize"
	"github.com/pinsync/pinsync/internal/ui"
)

var pinCmd = &cobra.Command{
	Use:     "pin",
	Aliases: []string{"pins"},
	GroupID: "data",
	Short:   "Capture and manage pins",
}

var pinAddCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Save a page as a pin",
	Long: `Save a page as a pin.

Without a URL on an interactive terminal a form asks for the details. Pins
without a collection are kept locally but never synced.

  pinsync pin add https://go.dev/doc -c <collection-id> --title "Go docs"
  pinsync pin add https://go.dev/blog --summarize`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		s := openStore(ctx)
		defer s.Close()

		p := &schema.Pin{}
		p.CollectionID, _ = cmd.Flags().GetString("collection")
		p.Page.Title, _ = cmd.Flags().GetString("title")
		p.Note, _ = cmd.Flags().GetString("note")
		doSummary, _ := cmd.Flags().GetBool("summarize")
		if len(args) == 1 {
			p.Page.URL = args[0]
		}

		if p.Page.URL == "" {
			if !ui.IsTerminal(os.Stdin) {
				fatal("a URL is required")
			}
			if err := pinForm(ctx, s, p); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return
				}
				fatal("%v", err)
			}
		}

		if p.CollectionID != "" {
			if _, err := s.GetCollection(ctx, p.CollectionID); err != nil {
				fatal("collection %s: %v", p.CollectionID, err)
			}
		}
		if err := s.InsertPin(ctx, p); err != nil {
			fatal("%v", err)
		}

		if doSummary {
			if err := summarizePin(ctx, s, p, p.CollectionID == ""); err != nil {
				fmt.Fprintf(os.Stderr, "%s Summary failed: %v\n", ui.RenderWarn("⚠"), err)
			}
		}

		if jsonOutput {
			printJSON(p)
			return
		}
		fmt.Printf("%s Pinned %s (%s)\n", ui.RenderPass("✓"), p.Page.URL, p.ID)
		if p.CollectionID == "" {
			fmt.Printf("   %s\n", ui.RenderMuted("No collection, this pin stays local until moved"))
		}
	},
}

// pinForm asks for the pin's details interactively.
func pinForm(ctx context.Context, s *store.Store, p *schema.Pin) error {
	cols, err := s.ListCollections(ctx)
	if err != nil {
		return err
	}
	options := []huh.Option[string]{huh.NewOption("(none, keep local)", "")}
	for _, c := range cols {
		options = append(options, huh.NewOption(c.Name, c.ID))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("URL").
				Value(&p.Page.URL).
				Validate(func(s string) error {
					u, err := url.Parse(s)
					if err != nil || u.Scheme == "" || u.Host == "" {
						return fmt.Errorf("enter an absolute URL")
					}
					return nil
				}),
			huh.NewInput().
				Title("Title").
				Value(&p.Page.Title),
			huh.NewSelect[string]().
				Title("Collection").
				Options(options...).
				Value(&p.CollectionID),
			huh.NewText().
				Title("Note").
				Value(&p.Note),
		),
	)
	return form.RunWithContext(ctx)
}

var pinListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pins",
	Long: `List pins, optionally filtered by collection or age.

  pinsync pin list -c <collection-id>
  pinsync pin list --since yesterday
  pinsync pin list --since 72h`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		collectionID, _ := cmd.Flags().GetString("collection")
		since, _ := cmd.Flags().GetString("since")

		s := openStore(ctx)
		defer s.Close()

		var (
			pins []*schema.Pin
			err  error
		)
		switch {
		case since != "":
			var t time.Time
			if t, err = parseSince(since, time.Now()); err != nil {
				fatal("%v", err)
			}
			pins, err = s.ListPinsSince(ctx, t)
		case collectionID != "":
			pins, err = s.ListPinsByCollection(ctx, collectionID)
		default:
			pins, err = s.ListPins(ctx)
		}
		if err != nil {
			fatal("%v", err)
		}
		if since != "" && collectionID != "" {
			pins = filterByCollection(pins, collectionID)
		}

		if jsonOutput {
			printJSON(pins)
			return
		}
		if len(pins) == 0 {
			fmt.Println("No pins found.")
			return
		}
		now := time.Now()
		for _, p := range pins {
			title := p.Page.Title
			if title == "" {
				title = p.Page.URL
			}
			fmt.Printf("%s  %s  %s\n", ui.RenderMuted(p.ID), ui.RenderBold(ui.Truncate(title, 70)), ui.RenderMuted(ui.RelativeTime(p.CreatedAt, now)))
			fmt.Printf("    %s\n", ui.RenderAccent(p.Page.URL))
			if p.Summary != nil {
				fmt.Printf("    %s\n", ui.Truncate(p.Summary.Text, 120))
			}
			if p.Note != "" {
				fmt.Printf("    %s %s\n", ui.RenderMuted("note:"), p.Note)
			}
		}
	},
}

func filterByCollection(pins []*schema.Pin, collectionID string) []*schema.Pin {
	out := pins[:0]
	for _, p := range pins {
		if p.CollectionID == collectionID {
			out = append(out, p)
		}
	}
	return out
}

var pinNoteCmd = &cobra.Command{
	Use:   "note <id> <text>",
	Short: "Set the local note of a pin",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		s := openStore(ctx)
		defer s.Close()

		if err := s.UpdatePinNote(ctx, args[0], args[1]); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Note saved\n", ui.RenderPass("✓"))
	},
}

var pinMoveCmd = &cobra.Command{
	Use:   "move <id> <collection-id>",
	Short: "Move a pin to a collection",
	Long: `Move a pin to a collection. An unassigned pin becomes syncable once
moved. Pins that were already pushed keep their old collection on the
backend.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		s := openStore(ctx)
		defer s.Close()

		if _, err := s.GetCollection(ctx, args[1]); err != nil {
			fatal("collection %s: %v", args[1], err)
		}
		if err := s.SetPinCollection(ctx, args[0], args[1]); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Moved %s\n", ui.RenderPass("✓"), args[0])
	},
}

var pinDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a pin locally",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		s := openStore(ctx)
		defer s.Close()

		if err := s.DeletePin(ctx, args[0]); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Deleted pin %s\n", ui.RenderPass("✓"), args[0])
	},
}

var pinSummarizeCmd = &cobra.Command{
	Use:   "summarize <id>",
	Short: "Summarize a pin with Claude",
	Long: `Fetch the pinned page and attach an AI summary to the pin. With
--categorize an unassigned pin is also filed into the collection whose goal
fits best.

Requires anthropic.api_key in the config or ANTHROPIC_API_KEY.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		categorize, _ := cmd.Flags().GetBool("categorize")

		s := openStore(ctx)
		defer s.Close()

		p, err := s.GetPin(ctx, args[0])
		if err != nil {
			fatal("%v", err)
		}
		before := p.CollectionID
		if err := summarizePin(ctx, s, p, categorize && before == ""); err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			printJSON(p)
			return
		}
		fmt.Printf("%s %s\n", ui.RenderPass("✓"), p.Summary.Text)
		if p.CollectionID != before {
			fmt.Printf("   Filed into %s\n", p.CollectionID)
		}
	},
}

// summarizePin fetches the page, stores a summary on p and, when categorize
// is set, files p into the best-fitting collection.
func summarizePin(ctx context.Context, s *store.Store, p *schema.Pin, categorize bool) error {
	sink := commandSink()
	defer sink.Close()

	sum, err := summarize.New(summarize.Config{
		APIKey: cfg.Anthropic.APIKey,
		Model:  cfg.Anthropic.Model,
		Logger: sink.Logger("summarize"),
	})
	if err != nil {
		return err
	}

	text, err := summarize.FetchText(ctx, nil, p.Page.URL)
	if err != nil {
		// Title and URL alone still give a usable summary.
		sink.Logger("summarize").Printf("Fetching page failed: %v", err)
	}
	summary, err := sum.Summarize(ctx, p.Page, text)
	if err != nil {
		return err
	}
	if err := s.SetPinSummary(ctx, p.ID, summary); err != nil {
		return err
	}
	p.Summary = summary

	if !categorize {
		return nil
	}
	cols, err := s.ListCollections(ctx)
	if err != nil {
		return err
	}
	id, err := sum.Categorize(ctx, p.Page, summary.Text, cols)
	if errors.Is(err, summarize.ErrNoMatch) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.SetPinCollection(ctx, p.ID, id); err != nil {
		return err
	}
	p.CollectionID = id
	return nil
}

func init() {
	pinAddCmd.Flags().StringP("collection", "c", "", "Collection id")
	pinAddCmd.Flags().StringP("title", "t", "", "Page title")
	pinAddCmd.Flags().StringP("note", "n", "", "Local note")
	pinAddCmd.Flags().Bool("summarize", false, "Summarize the page (and pick a collection if none is given)")

	pinListCmd.Flags().StringP("collection", "c", "", "Only pins of this collection")
	pinListCmd.Flags().String("since", "", "Only pins created since (e.g. 24h, yesterday, 2024-05-01)")

	pinSummarizeCmd.Flags().Bool("categorize", false, "File an unassigned pin into the best-fitting collection")

	pinCmd.AddCommand(pinAddCmd)
	pinCmd.AddCommand(pinListCmd)
	pinCmd.AddCommand(pinNoteCmd)
	pinCmd.AddCommand(pinMoveCmd)
	pinCmd.AddCommand(pinDeleteCmd)
	pinCmd.AddCommand(pinSummarizeCmd)
	rootCmd.AddCommand(pinCmd)
}
