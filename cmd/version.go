package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ternlab/tern/internal/app"
)

// Build metadata injected via ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("tern %s\n", app.Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		fmt.Printf("Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)

		if key := os.Getenv("GEMINI_API_KEY"); key == "" {
			fmt.Println("\nGEMINI_API_KEY is not set. Export it before chatting:")
			fmt.Println("  export GEMINI_API_KEY=your-api-key")
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
