package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pkgcross",
		Short: "Convert packages between deb, rpm and pacman formats",
		Long: `Pkgcross unpacks a package built for one distribution family and
rebuilds it for another.

Supported formats:
  - Debian/APT (.deb packages)
  - Fedora/DNF (.rpm packages)
  - Arch/pacman (.pkg.tar.zst packages)

Conversion goes through an on-disk intermediate layout, so a package
can also be extracted, inspected or patched, and rebuilt in separate
steps.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	rootCmd.AddCommand(NewConvertCmd())
	rootCmd.AddCommand(NewExtractCmd())
	rootCmd.AddCommand(NewBuildCmd())
	rootCmd.AddCommand(NewResolveCmd())

	return rootCmd
}
