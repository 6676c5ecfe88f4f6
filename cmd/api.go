package cmd

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveAPICmd = &cobra.Command{
	Use:   "serve-api",
	Short: "Serve the retrieval pipeline over HTTP",
	Long: `Expose the memory API over HTTP:

  POST /v1/memory/write             append an event
  POST /v1/memory/retrieve          fused ranked retrieval
  POST /v1/memory/retrieve_and_pack retrieval packed into a token budget
  POST /v1/context                  set named scope defaults
  GET  /v1/context?name=...         read named scope defaults
  GET  /metrics                     Prometheus metrics
  GET  /healthz                     liveness`,
	RunE: runServeAPI,
}

func init() {
	rootCmd.AddCommand(serveAPICmd)
	serveAPICmd.Flags().String("addr", "", "Listen address (default :8080)")
}

func runServeAPI(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.String("server.addr", ":8080")
	}

	shutdown, err := setupTracing(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(ctx) }()

	d, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	m := newAPIMetrics(prometheus.DefaultRegisterer)
	api := &MemoryAPI{deps: d, retriever: buildRetriever(d, m.pipeline)}

	mux := http.NewServeMux()
	api.RegisterMemoryRoutes(mux, m.instrument)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	logger.Info("http server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
