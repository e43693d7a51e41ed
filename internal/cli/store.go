package cmd

import (
	"fmt"
	"os"

	"github.com/rohmanhakim/newscrawl/internal/contentstore"
	"github.com/spf13/cobra"
)

// storeCmd groups content-store maintenance subcommands under
// `newscrawl store`.
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect the content store",
}

var storeInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print row counts and byte totals for the configured content store",
	Run: func(cmd *cobra.Command, args []string) {
		if sqlitePath == "" {
			fmt.Fprintf(os.Stderr, "Error: --sqlite-path is required.\n")
			os.Exit(1)
		}
		db, err := contentstore.Open(sqlitePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		defer db.Close()

		store := contentstore.NewStore(db, contentstore.DefaultParams())
		stats, statsErr := store.Stats()
		if statsErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", statsErr)
			os.Exit(1)
		}

		fmt.Printf("Content rows: %d\n", stats.ContentRows)
		fmt.Printf("Bucket rows: %d\n", stats.BucketRows)
		fmt.Printf("Uncompressed bytes: %d\n", stats.UncompressedSize)
		fmt.Printf("Compressed bytes: %d\n", stats.CompressedSize)
	},
}

func init() {
	storeCmd.AddCommand(storeInspectCmd)
}
