package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pinsync/pinsync/internal/schema"
	"github.com/pinsync/pinsync/internal/store"
	"github.com/pinsync/pinsync/internal/ui"
)

var collectionCmd = &cobra.Command{
	Use:     "collection",
	Aliases: []string{"collections", "col"},
	GroupID: "data",
	Short:   "Manage collections",
}

var collectionAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a collection",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		goal, _ := cmd.Flags().GetString("goal")
		color, _ := cmd.Flags().GetString("color")

		s := openStore(ctx)
		defer s.Close()

		c := &schema.Collection{Name: args[0], Goal: goal, Color: color}
		if err := s.InsertCollection(ctx, c); err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			printJSON(c)
			return
		}
		fmt.Printf("%s Created collection %s (%s)\n", ui.RenderPass("✓"), ui.RenderBold(c.Name), c.ID)
	},
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		s := openStore(ctx)
		defer s.Close()

		cols, err := s.ListCollections(ctx)
		if err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			printJSON(cols)
			return
		}
		if len(cols) == 0 {
			fmt.Println("No collections yet. Create one with 'pinsync collection add <name>'.")
			return
		}
		now := time.Now()
		for _, c := range cols {
			pins, err := s.ListPinsByCollection(ctx, c.ID)
			if err != nil {
				fatal("%v", err)
			}
			fmt.Printf("%s  %s  %s  %s\n",
				ui.RenderMuted(c.ID),
				ui.RenderBold(c.Name),
				ui.Plural(len(pins), "pin"),
				ui.RenderMuted(ui.RelativeTime(c.CreatedAt, now)))
			if c.Goal != "" {
				fmt.Printf("    %s\n", ui.Truncate(c.Goal, 100))
			}
		}
	},
}

var collectionDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a collection locally (its pins become unassigned)",
	Long: `Delete a collection from the local database. Its pins are kept and
become unassigned. The deletion is not propagated to the backend, so the
collection comes back on the next pull unless it is also deleted there.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		s := openStore(ctx)
		defer s.Close()

		if err := s.DeleteCollection(ctx, args[0]); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				fatal("collection %s not found", args[0])
			}
			fatal("%v", err)
		}
		fmt.Printf("%s Deleted collection %s\n", ui.RenderPass("✓"), args[0])
	},
}

func init() {
	collectionAddCmd.Flags().StringP("goal", "g", "", "What the collection is for (used for auto-categorization)")
	collectionAddCmd.Flags().String("color", "", "Hex color, e.g. #3366ff")

	collectionCmd.AddCommand(collectionAddCmd)
	collectionCmd.AddCommand(collectionListCmd)
	collectionCmd.AddCommand(collectionDeleteCmd)
	rootCmd.AddCommand(collectionCmd)
}
