package cmd

import (
	"fmt"
	"net"

	"github.com/signalnine/tracesift/internal/ingest"
	"github.com/signalnine/tracesift/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	flagAddr            string
	flagAllowOrigins    []string
	flagInsecureOrigins bool
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Analyze records streamed over WebSocket",
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&flagAddr, "addr", "localhost:9876", "listen address")
	cmd.Flags().StringSliceVar(&flagAllowOrigins, "allow-origin", nil, "origin host patterns accepted besides the server's own host (default localhost)")
	cmd.Flags().BoolVar(&flagInsecureOrigins, "insecure-origins", false, "accept WebSocket handshakes from any origin")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}

	log, err := openRunLog(e.cfg.Results.Dir, e.scenario.Name, "ws://"+flagAddr)
	if err != nil {
		return err
	}
	fmt.Printf("Run directory: %s\n", log.dir)

	opts := []ingest.Option{
		ingest.WithLogger(e.logger),
		ingest.WithInsecureOrigins(flagInsecureOrigins),
		ingest.WithSink(func(r pipeline.Result) {
			if err := log.add([]pipeline.Result{r}, 0); err != nil {
				e.logger.Error("storing result", "trace_id", r.TraceID, "error", err)
			}
		}),
	}
	if len(flagAllowOrigins) > 0 {
		opts = append(opts, ingest.WithOriginPatterns(flagAllowOrigins...))
	}
	srv := ingest.NewServer(e.pipeline, e.loader, opts...)
	return srv.ListenAndServe(cmd.Context(), flagAddr, func(addr net.Addr) {
		fmt.Printf("Listening on ws://%s (scenario %s)\n", addr, e.scenario.Name)
	})
}
