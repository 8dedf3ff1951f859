package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jkbrsn/httpscope"
	"github.com/jkbrsn/httpscope/internal/config"
	"github.com/jkbrsn/httpscope/internal/observability"
	"github.com/jkbrsn/httpscope/pkg/collector"
	"github.com/jkbrsn/httpscope/pkg/harlog"
	"github.com/jkbrsn/httpscope/pkg/livefeed"
	"github.com/jkbrsn/httpscope/pkg/otelsink"
	"github.com/jkbrsn/httpscope/pkg/promsink"
)

const shutdownTimeout = 5 * time.Second

type fetchOptions struct {
	method string
	repeat int
	hold   time.Duration
	pretty bool
}

func newFetchCmd(a *app) *cobra.Command {
	opts := fetchOptions{method: http.MethodGet, repeat: 1}

	cmd := &cobra.Command{
		Use:   "fetch <url>...",
		Short: "Send requests and print the measured timeline",
		Args:  cobra.MinimumNArgs(1),
		Example: `  httpscope fetch https://httpbin.org/status/418
  httpscope fetch https://example.com --repeat 5 --har out.har
  httpscope fetch https://example.com --live-addr :9092 --hold 1m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), a.cfg, opts, args, cmd.OutOrStdout(), a.logger)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.method, "method", "X", opts.method, "HTTP method")
	f.IntVarP(&opts.repeat, "repeat", "n", opts.repeat, "Requests per URL")
	f.DurationVar(&opts.hold, "hold", 0, "Keep the metrics and live servers up this long after fetching")
	f.BoolVar(&opts.pretty, "pretty", true, "Indent the printed timeline")
	f.StringSliceVar(&a.cfg.Fields, "fields", a.cfg.Fields, "Parameters extracted for every measurement")
	f.StringVar(&a.cfg.Label, "label", a.cfg.Label, "Label format (verbose, compact)")
	f.IntVarP(&a.cfg.Concurrency, "concurrency", "c", a.cfg.Concurrency, "Requests in flight at once")
	f.DurationVar(&a.cfg.Timeout, "timeout", a.cfg.Timeout, "Total timeout per request")
	f.BoolVar(&a.cfg.StatusErrs, "status-errors", a.cfg.StatusErrs, "Report status >= 400 as failed exchanges")
	f.Float64Var(&a.cfg.SampleRate, "metrics-sample-rate", a.cfg.SampleRate, "Share of measurements observed by metrics")
	f.StringVar(&a.cfg.HARFile, "har", a.cfg.HARFile, "Write the exchanges to this HAR file")
	f.StringVar(&a.cfg.OTLPEndpoint, "otlp-endpoint", a.cfg.OTLPEndpoint, "Export spans to this OTLP gRPC endpoint")
	f.StringVar(&a.cfg.ServiceName, "service-name", a.cfg.ServiceName, "Service name reported with spans")
	f.StringVar(&a.cfg.MetricsAddr, "metrics-addr", a.cfg.MetricsAddr, "Serve Prometheus metrics on this address")
	f.StringVar(&a.cfg.LiveAddr, "live-addr", a.cfg.LiveAddr, "Serve the websocket live feed on this address")
	return cmd
}

// runFetch wires the sinks selected by cfg to a tracker, sends every request and prints the
// collected timeline to out.
func runFetch(
	ctx context.Context,
	cfg config.Config,
	opts fetchOptions,
	urls []string,
	out io.Writer,
	logger zerolog.Logger,
) error {
	if opts.repeat < 1 {
		return fmt.Errorf("repeat must be at least 1, got %d", opts.repeat)
	}

	coll := collector.New()
	timelines := httpscope.MultiTimeline{coll}
	exceptions := httpscope.MultiExceptionSink{coll}
	trackerOpts := []httpscope.TrackerOption{
		httpscope.WithFields(cfg.FieldSet()),
		httpscope.WithLabelFormat(cfg.LabelFormat()),
		httpscope.WithLogger(logger),
	}

	var har *harlog.Recorder
	if cfg.HARFile != "" {
		har = harlog.NewRecorder(harlog.WithCreator("httpscope", observability.Version))
		timelines = append(timelines, har)
	}

	if cfg.OTLPEndpoint != "" {
		tp, shutdown, err := otelsink.Setup(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
		if err != nil {
			return fmt.Errorf("setting up span export: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn().Err(err).Msg("flushing spans")
			}
		}()
		spans := otelsink.New(tp)
		timelines = append(timelines, spans)
		exceptions = append(exceptions, spans)
	}

	var servers []*http.Server
	defer func() { shutdownServers(servers, logger) }()

	if cfg.MetricsAddr != "" {
		metrics := promsink.New()
		trackerOpts = append(trackerOpts,
			httpscope.WithMetricsSink(metrics),
			httpscope.WithMetricsSampleRate(cfg.SampleRate))
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv, err := serve(cfg.MetricsAddr, mux, logger)
		if err != nil {
			return err
		}
		servers = append(servers, srv)
	}

	if cfg.LiveAddr != "" {
		hub, err := livefeed.NewHub(livefeed.WithLogger(logger))
		if err != nil {
			return err
		}
		defer func() { _ = hub.Close() }()
		timelines = append(timelines, hub)
		exceptions = append(exceptions, hub)
		mux := http.NewServeMux()
		mux.Handle("/live", hub)
		srv, err := serve(cfg.LiveAddr, mux, logger)
		if err != nil {
			return err
		}
		servers = append(servers, srv)
	}

	trackerOpts = append(trackerOpts, httpscope.WithExceptionSink(exceptions))
	tracker := httpscope.NewTracker(timelines, trackerOpts...)

	client, err := httpscope.NewClient([]httpscope.Subscriber{tracker},
		httpscope.WithTimeouts(httpscope.Timeouts{Total: cfg.Timeout}),
		httpscope.WithTransportOptions(
			httpscope.WithStatusErrors(cfg.StatusErrs),
			httpscope.WithTransportLogger(logger),
		),
	)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for _, url := range urls {
		for range opts.repeat {
			g.Go(func() error {
				return fetch(gctx, client, opts.method, url, logger)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stats := tracker.Stats()
	logger.Info().
		Int64("completed", stats.Completed).
		Int64("failed", stats.Failed).
		Int("exceptions", len(coll.Exceptions())).
		Msg("fetch finished")

	if har != nil {
		if err := har.WriteFile(cfg.HARFile); err != nil {
			return err
		}
		logger.Info().Str("file", cfg.HARFile).Int("entries", len(har.Entries())).Msg("HAR written")
	}

	if err := printTimeline(out, coll, opts.pretty); err != nil {
		return err
	}

	if opts.hold > 0 && len(servers) > 0 {
		logger.Info().Dur("hold", opts.hold).Msg("holding servers")
		select {
		case <-time.After(opts.hold):
		case <-ctx.Done():
		}
	}
	return nil
}

// fetch sends one request and drains its body. Request failures are already measured and
// only end the run when they stem from an invalid request.
func fetch(ctx context.Context, client *http.Client, method, url string, logger zerolog.Logger) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, httpscope.ErrNotStarted) {
			return err
		}
		logger.Warn().Err(err).Str("url", url).Msg("request failed")
		return nil
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		logger.Warn().Err(err).Str("url", url).Msg("reading response body")
	}
	return nil
}

func printTimeline(out io.Writer, coll *collector.Collector, pretty bool) error {
	var data []byte
	var err error
	if pretty {
		data, err = sonic.ConfigDefault.MarshalIndent(coll.Snapshot(), "", "  ")
	} else {
		data, err = coll.MarshalJSON()
	}
	if err != nil {
		return fmt.Errorf("encoding timeline: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// serve listens on addr and serves handler in the background.
func serve(addr string, handler http.Handler, logger zerolog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("server stopped")
		}
	}()
	logger.Info().Stringer("addr", ln.Addr()).Msg("server listening")
	return srv, nil
}

func shutdownServers(servers []*http.Server, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("server shutdown")
		}
	}
}
