package cmd

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"thoreinstein.com/shipwright/pkg/server"
)

var (
	serveHost string
	servePort int
)

// serveCmd runs the web API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the shipwright HTTP API.

Ticket and review routes live under /api/ticket and /api/review. Long
operations (plan, implement, review) stream Server-Sent Events. Each
browser gets its own session via the shipwright_session cookie or the
X-Session-ID header.

The server stops gracefully on SIGINT or SIGTERM.

Examples:
  shipwright serve
  shipwright serve --port 8080
  PORT=8080 shipwright serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "address to bind (default from server.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (default from server.port or PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, newCredentialStore())
	if err != nil {
		return err
	}
	defer a.Close()

	host := cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	ctx := a.logger.WithContext(cmd.Context())
	srv := server.New(a.deps(), verbose, server.WithLogger(a.logger.Slog()))

	out := cmd.OutOrStdout()
	return srv.Serve(ctx, net.JoinHostPort(host, strconv.Itoa(port)), func(addr net.Addr) {
		fmt.Fprintf(out, "%s http://%s\n", okStyle.Render("shipwright listening on"), addr)
	})
}
