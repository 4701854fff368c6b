// Command paperportal is the desktop dev-harness for the Paper Portal
// file-server engine: a Cobra CLI that drives the guest engine
// (ftpd/davd, via engine.Server) outside the real device's host ABI,
// for local development and manual testing against a real TCP stack
// and a real on-disk filesystem.
package main

import (
	"fmt"
	"os"

	"github.com/paperportal/fileserver/cmd/paperportal/servecmd"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "paperportal",
	Short: "Desktop dev-harness for the Paper Portal file-server engine",
	Long: `paperportal runs the Paper Portal FTP and WebDAV engines against a
real TCP stack and a real on-disk filesystem root, for local
development and manual testing of the embedded guest engine outside
its real host ABI.`,
}

func init() {
	rootCmd.AddCommand(servecmd.Command)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
