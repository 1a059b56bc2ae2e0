package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/msto63/speechrec/internal/segmentstore"
)

var (
	segmentsDB      string
	segmentsLimit   int
	segmentsTrigger string
	segmentsSince   time.Duration
	segmentsJSON    bool
	pruneOlderThan  time.Duration
)

var segmentsCmd = &cobra.Command{
	Use:   "segments",
	Short: "Zeigt aufgezeichnete Segmente",
	Long: `Zeigt die Segmente aus dem SQLite-Journal, neueste zuerst.

Beispiele:
  speechrec segments --limit 10
  speechrec segments --trigger pause --since 24h
  speechrec segments prune --older-than 720h`,
	RunE: runSegments,
}

var segmentsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Entfernt alte Segmente aus dem Journal",
	RunE:  runSegmentsPrune,
}

func init() {
	segmentsCmd.PersistentFlags().StringVar(&segmentsDB, "db", "", "Pfad zur Journal-Datenbank (default: aus Config)")
	segmentsCmd.Flags().IntVarP(&segmentsLimit, "limit", "n", 20, "Maximale Anzahl")
	segmentsCmd.Flags().StringVar(&segmentsTrigger, "trigger", "", "Nur Segmente mit diesem Trigger")
	segmentsCmd.Flags().DurationVar(&segmentsSince, "since", 0, "Nur Segmente der letzten Zeitspanne (z.B. 24h)")
	segmentsCmd.Flags().BoolVar(&segmentsJSON, "json", false, "Ausgabe als JSON")

	segmentsPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "Segmente älter als diese Zeitspanne entfernen")

	segmentsCmd.AddCommand(segmentsPruneCmd)
	rootCmd.AddCommand(segmentsCmd)
}

// openJournal opens the journal named by --db or the config file
func openJournal() (*segmentstore.Store, error) {
	path := segmentsDB
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Output.Database
		if path == "" {
			path = filepath.Join(cfg.General.DataDir, "segments.db")
		}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("journal not found: %s", path)
	}
	return segmentstore.Open(segmentstore.Config{Path: path})
}

func runSegments(cmd *cobra.Command, args []string) error {
	store, err := openJournal()
	if err != nil {
		printError("Journal konnte nicht geöffnet werden", err)
		return err
	}
	defer store.Close()

	filter := segmentstore.Filter{
		Limit:     segmentsLimit,
		TriggerID: segmentsTrigger,
	}
	if segmentsSince > 0 {
		filter.Since = time.Now().Add(-segmentsSince)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	records, err := store.ListSegments(ctx, filter)
	if err != nil {
		printError("Segmente konnten nicht gelesen werden", err)
		return err
	}

	if segmentsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("Keine Segmente gefunden")
		return nil
	}

	fmt.Printf("%-36s  %-19s  %8s  %s\n", "ID", "Start", "Dauer", "Trigger")
	for _, r := range records {
		var triggers string
		for i, hit := range r.Triggers {
			if i > 0 {
				triggers += ","
			}
			triggers += hit.TriggerID
		}
		fmt.Printf("%-36s  %-19s  %7.2fs  %s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			float64(r.DurationMs)/1000, triggers)
	}
	return nil
}

func runSegmentsPrune(cmd *cobra.Command, args []string) error {
	store, err := openJournal()
	if err != nil {
		printError("Journal konnte nicht geöffnet werden", err)
		return err
	}
	defer store.Close()

	deleted, err := store.Prune(cmd.Context(), pruneOlderThan)
	if err != nil {
		printError("Bereinigung fehlgeschlagen", err)
		return err
	}
	fmt.Printf("%d Segmente entfernt\n", deleted)
	return nil
}
