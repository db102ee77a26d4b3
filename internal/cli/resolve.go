package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/emufarm/pkgcross/internal/depmap"
	"github.com/emufarm/pkgcross/internal/distro"
	"github.com/emufarm/pkgcross/internal/resolver"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type resolveConfig struct {
	RegistryPath  string
	Target        string
	Source        string
	Prefix        string
	Concurrency   int
	SizeLimitMB   int64
	OutputDir     string
	DepMapPath    string
	PairsPath     string
	GPGKeyPath    string
	GPGPassphrase string
}

// NewResolveCmd creates the resolve command
func NewResolveCmd() *cobra.Command {
	var config resolveConfig

	cmd := &cobra.Command{
		Use:   "resolve package...",
		Short: "Resolve and rebuild missing dependencies",
		Long: `Walks the dependency closure of the input packages against a target
distribution. Dependencies the target already ships at a compatible
version are left alone; the rest are fetched from a source
distribution, rebuilt in the target's format under a prefixed name,
and written next to the inputs' rebuilt artifacts.

Newly rebuilt packages are scanned for dependencies of their own, so
resolution keeps going until the closure is settled. Directory
arguments are scanned recursively for package files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.Target == "" || config.Source == "" {
				return fmt.Errorf("--target and --source are required")
			}
			inputs, err := expandInputs(cmd.Context(), args)
			if err != nil {
				return err
			}

			registry, err := distro.LoadRegistry(config.RegistryPath)
			if err != nil {
				return err
			}
			target, err := registry.Open(config.Target)
			if err != nil {
				return err
			}
			source, err := registry.Open(config.Source)
			if err != nil {
				return err
			}

			dm, err := loadDepMap(config.DepMapPath)
			if err != nil {
				return err
			}
			if dm == nil {
				dm = depmap.New()
			}
			if config.PairsPath != "" {
				if _, err := os.Stat(config.PairsPath); err == nil {
					if err := dm.LoadPairs(config.PairsPath); err != nil {
						return err
					}
					logrus.Debugf("Loaded earlier pairs from %s", config.PairsPath)
				}
			}

			sgn, err := loadSigner(config.GPGKeyPath, config.GPGPassphrase)
			if err != nil {
				return err
			}

			res := resolver.New(resolver.Options{
				Target:      target,
				Source:      source,
				Prefix:      config.Prefix,
				Concurrency: config.Concurrency,
				SizeLimit:   config.SizeLimitMB * 1024 * 1024,
				OutputDir:   config.OutputDir,
				DepMap:      dm,
				Signer:      sgn,
			})

			summary, err := res.Run(cmd.Context(), inputs)
			if err != nil {
				return err
			}

			if config.PairsPath != "" {
				if err := dm.WritePairs(config.PairsPath); err != nil {
					return err
				}
				logrus.Infof("Wrote dependency pairs to %s", config.PairsPath)
			}

			printSummary(summary)

			if len(summary.Failures) > 0 {
				return fmt.Errorf("%d dependencies could not be resolved", len(summary.Failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&config.RegistryPath, "registry", "r", "distros.yaml", "Distribution registry (YAML)")
	cmd.Flags().StringVar(&config.Target, "target", "", "Target distribution name from the registry")
	cmd.Flags().StringVar(&config.Source, "source", "", "Source distribution name from the registry")
	cmd.Flags().StringVar(&config.Prefix, "prefix", "", "Rebuilt package name prefix (defaults to the source codename)")
	cmd.Flags().IntVar(&config.Concurrency, "concurrency", resolver.DefaultConcurrency, "Parallel rebuild workers")
	cmd.Flags().Int64Var(&config.SizeLimitMB, "size-limit", 95, "Largest source package to rebuild, in MB (negative disables the check)")
	cmd.Flags().StringVarP(&config.OutputDir, "output-dir", "o", "./rebuilt", "Output directory for rebuilt packages")
	cmd.Flags().StringVar(&config.DepMapPath, "depmap", "", "Dependency name table file")
	cmd.Flags().StringVar(&config.PairsPath, "pairs", "", "File recording original=prefixed pairs across runs")
	cmd.Flags().StringVarP(&config.GPGKeyPath, "gpg-key", "k", "", "Path to GPG private key")
	cmd.Flags().StringVarP(&config.GPGPassphrase, "gpg-passphrase", "p", "", "GPG key passphrase")

	return cmd
}

func printSummary(summary *resolver.Summary) {
	fmt.Println(color.GreenString("Satisfied by the target distribution: %d", len(summary.Satisfied)))
	for _, name := range summary.Satisfied {
		fmt.Printf("  - %s\n", name)
	}

	fmt.Println(color.GreenString("Rebuilt from the source distribution: %d", len(summary.Rebuilt)))
	originals := make([]string, 0, len(summary.Rebuilt))
	for original := range summary.Rebuilt {
		originals = append(originals, original)
	}
	sort.Strings(originals)
	for _, original := range originals {
		fmt.Printf("  - %s -> %s\n", original, summary.Rebuilt[original])
	}

	if len(summary.Failures) == 0 {
		return
	}
	fmt.Println(color.RedString("Failed: %d", len(summary.Failures)))
	grouped := summary.FailuresByStage()
	stages := make([]string, 0, len(grouped))
	for stage := range grouped {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		fmt.Printf("  %s: %s\n", stage, strings.Join(grouped[stage], ", "))
	}
}
