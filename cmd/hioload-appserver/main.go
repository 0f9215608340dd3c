// File: cmd/hioload-appserver/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Command hioload-appserver runs the framed app server and talks to it.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hioload-appserver",
		Short: "Socket-level application server",
		Long: `hioload-appserver accepts TCP or TLS connections carrying
length-prefixed frames and routes them through a handler pipeline that
speaks HTTP/1.x and WebSocket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serveCmd(),
		requestCmd(),
		wsCmd(),
		versionCmd(),
	)
	return root
}
