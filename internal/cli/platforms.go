package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/koios/iconforge/pkg/models"
	"github.com/spf13/cobra"
)

// NewPlatformsCmd creates the platforms command
func NewPlatformsCmd() *cobra.Command {
	var (
		catalogPath string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "platforms",
		Short: "List the platforms icons can be generated for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := models.LoadCatalog(catalogPath)
			if err != nil {
				return fmt.Errorf("failed to load catalog: %w", err)
			}

			summaries := catalog.Summaries()
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tICONS\tEXTRAS")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, s.Name, s.IconCount, extras(s))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "platform catalog YAML (defaults to the built-in catalog)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the listing as JSON")

	return cmd
}

func extras(s models.PlatformSummary) string {
	switch {
	case s.GenerateIco && s.GenerateManifest:
		return models.LegacyIconFileName + ", " + models.ManifestFileName
	case s.GenerateIco:
		return models.LegacyIconFileName
	case s.GenerateManifest:
		return models.ManifestFileName
	default:
		return "-"
	}
}
