package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mdfetch/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the converter over HTTP as a web form and JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		stats, err := server.OpenStats(viper.GetString("stats-db"))
		if err != nil {
			return fmt.Errorf("open stats store: %w", err)
		}
		defer stats.Close()

		addr := viper.GetString("addr")
		srv := server.New(stats, viper.GetBool("hexo"))

		log.Info("serving", "addr", addr)
		return http.ListenAndServe(addr, srv.Handler())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	serveCmd.Flags().String("addr", "localhost:8080", "HTTP address to listen on")
	serveCmd.Flags().String("stats-db", filepath.Join(home, ".mdfetch", "stats.db"), "Path to the visit/download counters database")

	viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("stats-db", serveCmd.Flags().Lookup("stats-db"))
}
