package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean [folder]",
	Short: "Removes leftover crawl ledgers so a collection restarts from scratch",
	Long: `Clean deletes the processed/failed id files a partially-failed crawl
left in a collection folder. The next fetch of that collection starts
over instead of resuming.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}

		var removed int
		for _, pattern := range []string{"*_processed_articles.txt", "*_failed_articles.txt"} {
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				return err
			}
			for _, path := range matches {
				if err := os.Remove(path); err != nil {
					return fmt.Errorf("remove %s: %w", path, err)
				}
				fmt.Println("removed", path)
				removed++
			}
		}

		if removed == 0 {
			fmt.Println("No ledger files found.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
