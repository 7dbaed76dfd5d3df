package cli

import (
	"fmt"
	"os"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"dedup/config"
	"dedup/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	logger  *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Duplicate-aware document store for text files",
	Long: `dedup stores text files in a vector database collection and refuses
files whose content is identical to something already stored.

Example usage:
  dedup serve                    # Web form at http://127.0.0.1:8080
  dedup upload notes/ README.md  # Bulk upload files and directories
  dedup list                     # Show stored file names
  dedup match -f draft.txt       # Which stored files equal draft.txt`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if err := config.LoadEnv(rootDir); err != nil {
			return err
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger = logging.New(cfg.Logging)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./dedup.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
