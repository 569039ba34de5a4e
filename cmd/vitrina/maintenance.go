package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/erazemk/vitrina/internal/history"
	"github.com/erazemk/vitrina/internal/seed"
	"github.com/erazemk/vitrina/internal/store"
)

func newRebuildCmd(opts *options) *cobra.Command {
	var itemID int64

	cmd := &cobra.Command{
		Use:   "rebuild-snapshots",
		Short: "Recompute item locations from history",
		Long: `Recompute every item's current location and floor flag from its history.
Items whose location cannot be determined keep their stored values.
With --item-id only that item is rebuilt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rebuild(contextOf(cmd), cmd.OutOrStdout(), opts.dbPath, itemID)
		},
	}

	cmd.Flags().Int64Var(&itemID, "item-id", 0, "rebuild only this item")
	return cmd
}

func rebuild(ctx context.Context, out io.Writer, dbPath string, itemID int64) error {
	database, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if itemID > 0 {
		loc, err := history.RebuildSnapshot(ctx, database, itemID)
		if err != nil {
			return err
		}
		if loc == nil {
			fmt.Fprintf(out, "item %d: location unknown, snapshot unchanged\n", itemID)
		} else {
			fmt.Fprintf(out, "item %d: %s (%s)\n", itemID, loc.Name, loc.Category)
		}
		return nil
	}

	report, err := history.RebuildAllSnapshots(ctx, database)
	if err != nil {
		return err
	}

	err = store.PutSetting(ctx, database, store.SettingLastSnapshotRebuild, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Items:   %d\n", report.Total)
	fmt.Fprintf(out, "Updated: %d\n", report.Updated)
	fmt.Fprintf(out, "Unknown: %d\n", report.Unknown)
	fmt.Fprintf(out, "Failed:  %d\n", len(report.Failures))
	for _, f := range report.Failures {
		fmt.Fprintf(out, "  item %d: %s\n", f.ItemID, f.Error)
	}

	if len(report.Failures) > 0 {
		return fmt.Errorf("%d of %d items failed", len(report.Failures), report.Total)
	}
	return nil
}

func newSeedCmd(opts *options) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load locations, boxes, items, users and movement requests from a YAML or JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(contextOf(cmd), cmd.OutOrStdout(), opts.dbPath, file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file path")
	cmd.MarkFlagRequired("file")
	return cmd
}

func runSeed(ctx context.Context, out io.Writer, dbPath, file string) error {
	f, err := seed.Load(file)
	if err != nil {
		return err
	}

	database, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	report, err := seed.Apply(ctx, database, f)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Locations:         %d\n", report.Locations)
	fmt.Fprintf(out, "Boxes:             %d\n", report.Boxes)
	fmt.Fprintf(out, "Users:             %d\n", report.Users)
	fmt.Fprintf(out, "Items:             %d\n", report.Items)
	fmt.Fprintf(out, "Movement requests: %d\n", report.MovementRequests)
	fmt.Fprintf(out, "Skipped:           %d\n", report.Skipped)
	return nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
