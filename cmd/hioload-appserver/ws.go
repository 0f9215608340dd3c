// File: cmd/hioload-appserver/ws.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-appserver/client"
	"github.com/momentics/hioload-appserver/protocol"
)

func wsCmd() *cobra.Command {
	var (
		cf          clientFlags
		subprotocol []string
	)

	cmd := &cobra.Command{
		Use:   "ws [flags] PATH MESSAGE...",
		Short: "Open a WebSocket session and send text messages",
		Long: `Upgrade a framed connection to WebSocket, send each MESSAGE as a
text message and print one reply per message.

Example:
  hioload-appserver ws /echo hello world`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ws, err := client.DialWebSocket(ctx, cf.config(), args[0], subprotocol...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if p := ws.Subprotocol(); p != "" {
				fmt.Fprintf(out, "subprotocol: %s\n", p)
			}
			for _, msg := range args[1:] {
				if err := ws.WriteText(msg); err != nil {
					ws.Close()
					return err
				}
				_, reply, err := ws.ReadMessage()
				if err != nil {
					ws.Close()
					return err
				}
				fmt.Fprintf(out, "%s\n", reply)
			}
			return ws.CloseHandshake(protocol.CloseNormalClosure, "")
		},
	}
	cf.register(cmd)
	cmd.Flags().StringArrayVarP(&subprotocol, "protocol", "p", nil, "offered subprotocol, repeatable")
	return cmd
}
