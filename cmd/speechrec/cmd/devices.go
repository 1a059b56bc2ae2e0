package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/msto63/speechrec/pkg/audio/capture"
)

var devicesJSON bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Listet die verfügbaren Audio-Geräte",
	Long: `Listet alle Audio-Geräte, die PortAudio kennt.

Die ID kann bei "record --device" angegeben werden, ebenso der exakte Name.`,
	RunE: runDevices,
}

func init() {
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "Ausgabe als JSON")
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	devices, err := capture.Devices()
	if err != nil {
		printError("Geräte konnten nicht gelesen werden", err)
		return err
	}

	if devicesJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	}

	fmt.Println("Audio-Geräte")
	fmt.Println("============")
	for _, d := range devices {
		marker := "   "
		if d.IsDefault {
			marker = "[*]"
		}
		fmt.Printf("  %s %2d  %-40s in:%d out:%d  %.0f Hz  (%s)\n",
			marker, d.ID, d.Name, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate, d.HostAPI)
	}
	if len(devices) == 0 {
		fmt.Println("  Keine Geräte gefunden")
	}
	return nil
}
