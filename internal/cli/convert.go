package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/emufarm/pkgcross/internal/convert"
	"github.com/emufarm/pkgcross/internal/depmap"
	"github.com/emufarm/pkgcross/internal/models"
	"github.com/emufarm/pkgcross/internal/scanner"
	"github.com/emufarm/pkgcross/internal/signer"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type convertConfig struct {
	To            string
	OutputDir     string
	NewName       string
	DepMapPath    string
	GPGKeyPath    string
	GPGPassphrase string
}

// NewConvertCmd creates the convert command
func NewConvertCmd() *cobra.Command {
	var config convertConfig

	cmd := &cobra.Command{
		Use:   "convert package...",
		Short: "Convert packages to another format",
		Long: `Unpacks each input package into an intermediate layout and rebuilds
it in the requested format. The input format is detected from the
file name, so .deb, .rpm and .pkg.tar.* inputs can be mixed freely.
Directory arguments are scanned recursively for package files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.To == "" {
				return fmt.Errorf("--to is required")
			}
			target, err := models.ParseFormat(config.To)
			if err != nil {
				return err
			}
			inputs, err := expandInputs(cmd.Context(), args)
			if err != nil {
				return err
			}
			if config.NewName != "" && len(inputs) > 1 {
				return fmt.Errorf("--name applies to a single package, got %d inputs", len(inputs))
			}

			dm, err := loadDepMap(config.DepMapPath)
			if err != nil {
				return err
			}
			sgn, err := loadSigner(config.GPGKeyPath, config.GPGPassphrase)
			if err != nil {
				return err
			}

			opts := convert.Options{
				Target:    target,
				OutputDir: config.OutputDir,
				NewName:   config.NewName,
				DepMap:    dm,
				Signer:    sgn,
			}

			for _, path := range inputs {
				artifact, err := convert.Convert(cmd.Context(), path, opts)
				if err != nil {
					return err
				}
				fmt.Println(artifact)
			}
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

// expandInputs replaces directory arguments with the package files
// found inside them
func expandInputs(ctx context.Context, args []string) ([]string, error) {
	sc := scanner.NewFileSystemScanner()
	var inputs []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			inputs = append(inputs, arg)
			continue
		}
		found, err := sc.Scan(ctx, arg)
		if err != nil {
			return nil, err
		}
		for _, pkg := range found {
			inputs = append(inputs, pkg.Path)
		}
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no package files among the inputs")
	}
	return inputs, nil
}

func loadDepMap(path string) (*depmap.Map, error) {
	if path == "" {
		return nil, nil
	}
	dm, err := depmap.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load dependency table: %w", err)
	}
	logrus.Debugf("Loaded dependency table from %s", path)
	return dm, nil
}

func loadSigner(keyPath, passphrase string) (signer.Signer, error) {
	if keyPath == "" {
		return nil, nil
	}
	s, err := signer.NewGPGSigner(keyPath, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GPG signer: %w", err)
	}
	logrus.Info("GPG signer initialized")
	return s, nil
}
