package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/koios/iconforge/internal/bundle"
	"github.com/koios/iconforge/internal/handlers"
	"github.com/koios/iconforge/internal/imaging"
	"github.com/koios/iconforge/pkg/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type generateOptions struct {
	platforms   []string
	outDir      string
	catalogPath string
	workers     int
	minSize     int
	maxBytes    int64
	maxPixels   int64
	timeout     time.Duration
	verbose     bool
}

// NewGenerateCmd creates the generate command
func NewGenerateCmd() *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate <image>",
		Short: "Generate an icon archive from a local image",
		Long: `Render a local image into every size the selected platforms require and
write the zip archive into the output directory.

The same validation as the HTTP API applies: the file must be PNG, JPEG, WEBP
or SVG and every platform id must exist in the catalog.`,
		Example: `  iconforge generate logo.png --platforms ios,android,web
  iconforge generate logo.svg -p pwa -o dist`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.platforms, "platforms", "p", nil, "platform ids to generate (comma separated)")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", ".", "directory the archive is written to")
	cmd.Flags().StringVar(&opts.catalogPath, "catalog", "", "platform catalog YAML (defaults to the built-in catalog)")
	cmd.Flags().IntVar(&opts.workers, "workers", runtime.NumCPU(), "concurrent resize workers")
	cmd.Flags().IntVar(&opts.minSize, "min-size", 1024, "smallest source side that does not trigger a quality warning")
	cmd.Flags().Int64Var(&opts.maxBytes, "max-bytes", handlers.DefaultMaxUploadBytes, "largest accepted source file in bytes")
	cmd.Flags().Int64Var(&opts.maxPixels, "max-pixels", imaging.DefaultMaxSourcePixels, "largest accepted source in pixels (width*height)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", time.Minute, "generation deadline")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline progress")
	cmd.MarkFlagRequired("platforms")

	return cmd
}

func runGenerate(cmd *cobra.Command, imagePath string, opts *generateOptions) error {
	logger := zap.NewNop()
	if opts.verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer logger.Sync()
	}

	catalog, err := models.LoadCatalog(opts.catalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", imagePath, err)
	}

	pool := imaging.NewWorkerPool(opts.workers, logger)
	pool.Start()
	defer pool.Stop()

	generator := handlers.NewGenerator(
		bundle.NewAssembler(catalog, pool, logger).WithMaxSourcePixels(opts.maxPixels),
		handlers.NewValidator(catalog, opts.maxBytes),
		opts.minSize,
		opts.timeout,
		logger,
	)

	result, err := generator.Handle(context.Background(), &models.GenerationRequest{
		SourceImage:  data,
		MimeType:     imaging.DetectMimeType(data),
		DeclaredSize: int64(len(data)),
		PlatformIDs:  opts.platforms,
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	outPath := filepath.Join(opts.outDir, result.Filename)
	if err := os.WriteFile(outPath, result.ArchiveBytes, 0644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, warning := range result.Warnings {
		fmt.Fprintln(out, warning)
	}
	fmt.Fprintf(out, "Wrote %d icons for %s to %s (%s)\n",
		result.TotalFileCount,
		strings.Join(opts.platforms, ", "),
		outPath,
		humanize.Bytes(uint64(len(result.ArchiveBytes))))

	return nil
}
