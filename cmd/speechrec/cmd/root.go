package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/msto63/speechrec/pkg/core/config"
	"github.com/msto63/speechrec/pkg/core/logging"
)

var (
	cfgFile   string
	verbose   bool
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "speechrec",
	Short: "speechrec - Spracherkennung in Audio-Streams",
	Long: `speechrec zerlegt einen Audio-Stream in Sprachabschnitte.

Jeder Frame wird per Voice Activity Detection und Lautstärke als Sprache
oder Stille eingestuft. Mit Hysterese-Schwellen werden daraus Chunks mit
Vorlauf gebildet, Trigger feuern nach einer festen Anzahl stiller Frames.

Befehle:
  record    - Aufnahme starten (Gerät, Datei oder stdin)
  devices   - Audio-Geräte auflisten
  segments  - Segment-Journal anzeigen und bereinigen
  version   - Version anzeigen`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config-Datei (default: $SPEECHREC_CONFIG oder ./speechrec.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose Output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log-Format (json, text)")
}

// loadConfig loads the config file named by --config or found in the default locations
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.Load(cfgFile)
	}
	return config.LoadFromEnv()
}

// newLogger builds the logger from the general config section
func newLogger(cfg *config.Config) *logging.Logger {
	lc := logging.DefaultLoggerConfig("speechrec")
	lc.Level = cfg.General.LogLevel
	lc.Format = cfg.General.LogFormat
	if logFormat != "" {
		lc.Format = logFormat
	}
	if verbose {
		lc.Level = "debug"
	}
	return logging.NewLogger(lc)
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Fehler: %s: %v\n", msg, err)
}
