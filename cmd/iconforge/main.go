package main

import (
	"fmt"
	"os"

	"github.com/koios/iconforge/internal/cli"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "iconforge",
		Short: "Generate app icon sets from a single source image",
		Long: `iconforge renders one source image (PNG, JPEG, WEBP or SVG) into every icon
size a set of platforms requires and packs the results into a zip archive.

Run 'iconforge platforms' to see the available platform ids.`,
		Version: version,
	}

	rootCmd.AddCommand(cli.NewGenerateCmd())
	rootCmd.AddCommand(cli.NewPlatformsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
