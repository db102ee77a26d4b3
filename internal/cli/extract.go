package cli

import (
	"fmt"
	"os"

	"github.com/emufarm/pkgcross/internal/convert"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type extractConfig struct {
	OutputDir string
}

// NewExtractCmd creates the extract command
func NewExtractCmd() *cobra.Command {
	var config extractConfig

	cmd := &cobra.Command{
		Use:   "extract package",
		Short: "Unpack a package into an intermediate layout",
		Long: `Unpacks a package into the on-disk intermediate layout: the payload
tree under root/, metadata under meta/ and maintainer scripts under
meta/scripts/. The layout can be inspected, patched and rebuilt with
the build command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := convert.FormatForPath(args[0])
			if err != nil {
				return err
			}
			extractor, err := convert.ExtractorFor(format)
			if err != nil {
				return err
			}

			workDir := config.OutputDir
			if workDir == "" {
				meta, err := extractor.Meta(args[0])
				if err != nil {
					return err
				}
				workDir = meta.Name
			}
			if err := os.MkdirAll(workDir, 0755); err != nil {
				return fmt.Errorf("failed to create layout dir: %w", err)
			}

			im, err := extractor.Extract(cmd.Context(), args[0], workDir)
			if err != nil {
				return err
			}

			logrus.Infof("Extracted %s", im)
			fmt.Println(workDir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&config.OutputDir, "output-dir", "o", "", "Layout directory (defaults to the package name)")

	return cmd
}
