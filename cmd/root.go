package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mdfetch",
	Short: "mdfetch converts platform articles into self-contained Markdown",
	Long: `mdfetch downloads articles, answers, short videos, and whole collections
from zhihu, csdn, juejin, and weixin public accounts, converts them into
Markdown with locally-saved media, and can serve the converter over HTTP
as a ZIP download.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mdfetch/config.yaml)")
	rootCmd.PersistentFlags().String("cookie", "", "authentication cookie for gated platforms")
	rootCmd.PersistentFlags().String("output", ".", "directory documents are written to")
	rootCmd.PersistentFlags().Bool("hexo", false, "wrap math formulas in raw/endraw pairs for hexo")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	viper.BindPFlag("cookie", rootCmd.PersistentFlags().Lookup("cookie"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("hexo", rootCmd.PersistentFlags().Lookup("hexo"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		configPath := filepath.Join(home, ".mdfetch")
		viper.AddConfigPath(configPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		if err := os.MkdirAll(configPath, os.ModePerm); err != nil {
			fmt.Println("Error creating config directory:", err)
			os.Exit(1)
		}
		configFile := filepath.Join(configPath, "config.yaml")
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			if err := viper.SafeWriteConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					fmt.Println("Error writing config file:", err)
					os.Exit(1)
				}
			}
		}
	}

	viper.AutomaticEnv()

	viper.ReadInConfig()
}
