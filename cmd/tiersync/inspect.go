package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cuemby/tiersync/pkg/storage"
	"github.com/cuemby/tiersync/pkg/types"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List local cache entries",
	Long: `Inspect reads the local store directly and lists each entry with its
sync state. It never contacts the remote.

Examples:
  # Every database in the store
  tiersync inspect

  # One database
  tiersync inspect --db notes`,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().String("db", "", "Database name (default: every database in the store)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := storage.Open(cfg.Store, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer store.Close()

	names, err := store.Databases()
	if err != nil {
		return err
	}
	if name, _ := cmd.Flags().GetString("db"); name != "" {
		names = []string{name}
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATABASE\tKEY\tSTATE\tFIELDS")
	for _, name := range names {
		entries, err := store.List(name)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", name, err)
		}
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			entry := entries[k]
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", name, k, entryState(entry), len(entry.Without()))
		}
	}
	return w.Flush()
}

// entryState describes a local snapshot the way Load will treat it
func entryState(entry types.Fields) string {
	if status, _ := entry[types.StatusKey].(string); status == string(types.StatusRemovePending) {
		return "remove pending"
	}
	saved, ok := types.AsFields(entry[types.SavedKey])
	if !ok {
		return "never saved"
	}
	if len(entry.Without().Diff(saved)) > 0 {
		return "save pending"
	}
	return "synced"
}
