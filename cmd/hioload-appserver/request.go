// File: cmd/hioload-appserver/request.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-appserver/client"
	"github.com/momentics/hioload-appserver/http1"
)

type clientFlags struct {
	addr     string
	useTLS   bool
	insecure bool
	timeout  time.Duration
}

func (f *clientFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.addr, "addr", "a", "127.0.0.1:9000", "server address")
	fl.BoolVar(&f.useTLS, "tls", false, "connect over TLS")
	fl.BoolVarP(&f.insecure, "insecure", "k", false, "skip TLS certificate verification")
	fl.DurationVar(&f.timeout, "timeout", 10*time.Second, "wait for each reply")
}

func (f *clientFlags) config() client.Config {
	cfg := client.DefaultConfig(f.addr)
	cfg.ReadTimeout = f.timeout
	if f.useTLS {
		cfg.TLS = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: f.insecure, //nolint:gosec // opt-in flag for self-signed test servers
		}
	}
	return cfg
}

func requestCmd() *cobra.Command {
	var (
		cf      clientFlags
		method  string
		headers []string
		data    string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "request [flags] TARGET",
		Short: "Send one HTTP request over a framed connection",
		Long: `Send one HTTP/1.1 request as a single frame and print the response.

Examples:
  hioload-appserver request /healthz
  hioload-appserver request -X POST -d 'hello' -H 'Content-Type: text/plain' /echo`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(method, args[0], cf.addr, headers, data)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			c, err := client.Dial(ctx, cf.config())
			if err != nil {
				return err
			}
			defer c.Close()
			resp, err := c.Do(req)
			if err != nil {
				return err
			}
			printResponse(cmd.OutOrStdout(), resp, verbose)
			return nil
		},
	}
	cf.register(cmd)
	fl := cmd.Flags()
	fl.StringVarP(&method, "method", "X", "GET", "request method")
	fl.StringArrayVarP(&headers, "header", "H", nil, "header as 'Key: Value', repeatable")
	fl.StringVarP(&data, "data", "d", "", "request body")
	fl.BoolVarP(&verbose, "verbose", "v", false, "print status line and headers")
	return cmd
}

func buildRequest(method, target, host string, headers []string, data string) (*http1.Request, error) {
	req := http1.NewRequest(strings.ToUpper(method), target)
	req.Header.Set("Host", host)
	for _, h := range headers {
		k, v, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid header %q, want 'Key: Value'", h)
		}
		req.Header.Add(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	if data != "" {
		req.Body = []byte(data)
	}
	return req, nil
}

func printResponse(w io.Writer, resp *http1.Response, verbose bool) {
	if verbose {
		fmt.Fprintf(w, "%s %d %s\n", resp.Version, resp.StatusCode, resp.Reason)
		for _, f := range resp.Header.Fields() {
			fmt.Fprintf(w, "%s: %s\n", f.Key, f.Value)
		}
		for _, c := range resp.Cookies {
			fmt.Fprintf(w, "Set-Cookie: %s\n", c)
		}
		fmt.Fprintln(w)
	}
	_, _ = w.Write(resp.Body)
	if len(resp.Body) > 0 && resp.Body[len(resp.Body)-1] != '\n' {
		fmt.Fprintln(w)
	}
}
