package cli

import (
	"fmt"

	"github.com/emufarm/pkgcross/internal/convert"
	"github.com/emufarm/pkgcross/internal/layout"
	"github.com/emufarm/pkgcross/internal/models"
	"github.com/spf13/cobra"
)

type buildConfig struct {
	To            string
	OutputDir     string
	NewName       string
	DepMapPath    string
	GPGKeyPath    string
	GPGPassphrase string
}

// NewBuildCmd creates the build command
func NewBuildCmd() *cobra.Command {
	var config buildConfig

	cmd := &cobra.Command{
		Use:   "build layout-dir",
		Short: "Build a package from an intermediate layout",
		Long: `Rebuilds a package from a layout produced by the extract command.
Edits made to the layout, to the payload tree as well as to the
metadata files, end up in the built package.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.To == "" {
				return fmt.Errorf("--to is required")
			}
			target, err := models.ParseFormat(config.To)
			if err != nil {
				return err
			}

			dm, err := loadDepMap(config.DepMapPath)
			if err != nil {
				return err
			}
			sgn, err := loadSigner(config.GPGKeyPath, config.GPGPassphrase)
			if err != nil {
				return err
			}

			im, err := layout.Load(args[0])
			if err != nil {
				return err
			}

			artifact, err := convert.Emit(cmd.Context(), im, convert.Options{
				Target:    target,
				OutputDir: config.OutputDir,
				NewName:   config.NewName,
				DepMap:    dm,
				Signer:    sgn,
			})
			if err != nil {
				return err
			}

			fmt.Println(artifact)
			return nil
		},
	}

	cmd.Flags().StringVarP(&config.To, "to", "t", "", "Target format (deb, rpm or pacman)")
	cmd.Flags().StringVarP(&config.OutputDir, "output-dir", "o", ".", "Output directory")
	cmd.Flags().StringVar(&config.NewName, "name", "", "Rename the package before rebuilding")
	cmd.Flags().StringVar(&config.DepMapPath, "depmap", "", "Dependency name table file")
	cmd.Flags().StringVarP(&config.GPGKeyPath, "gpg-key", "k", "", "Path to GPG private key")
	cmd.Flags().StringVarP(&config.GPGPassphrase, "gpg-passphrase", "p", "", "GPG key passphrase")

	return cmd
}
