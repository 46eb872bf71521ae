package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// scanBinary is the external static security source scanner this command
// defers to. It is not part of this module; scan only locates and invokes
// it, per the narrow-interface boundary documented for this collaborator.
const scanBinary = "iris-scan"

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan [dir]",
		Short: "Run the external static security source scanner over dir",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			path, err := exec.LookPath(scanBinary)
			if err != nil {
				fmt.Printf("%s not found on PATH; skipping source scan\n", scanBinary)
				return
			}

			c := exec.Command(path, dir)
			c.Stdout = os.Stdout
			c.Stderr = os.Stderr
			if err := c.Run(); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
		},
	}
}
