package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mdfetch/internal/crawl"
	"mdfetch/internal/platform"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Converts an article or collection into Markdown with local media",
	Long: `Fetch classifies the URL, downloads the content, rewrites it into
Markdown, and saves every embedded image or video next to the document.
A collection URL crawls all member articles into one folder, resumable
via the checkpoint ledger it keeps there.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		name, err := platform.Fetch(args[0], platform.Options{
			Cookie:     viper.GetString("cookie"),
			BaseDir:    viper.GetString("output"),
			HexoEscape: viper.GetBool("hexo"),
		})

		var partial *crawl.PartialCrawlError
		if errors.As(err, &partial) {
			// partial output is still usable; the retained ledger drives the retry
			log.Warn("collection completed with failures",
				"failed", partial.Failed,
				"ledger", partial.LedgerPath,
			)
			fmt.Println(name)
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Println(name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
