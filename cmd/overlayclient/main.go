// Command overlayclient boots a single overlay client node: it loads its
// configuration, wires the event loop (engine.Client), bridges stdin/
// stdout as the UI collaborator channel pair using newline-delimited
// JSON, and serves prometheus metrics. Grounded on the teacher's
// cmd/authn/main.go bootstrap idiom: flag parsing, signal handling, a
// periodic log-flush goroutine, then handing off to the long-running
// worker.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/klynmesh/overlay-client/engine"
	"github.com/klynmesh/overlay-client/event"
	"github.com/klynmesh/overlay-client/internal/cfgload"
	"github.com/klynmesh/overlay-client/internal/nlog"
	"github.com/klynmesh/overlay-client/proto"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	configPath string
	nodeIDFlag uint
)

func init() {
	flag.StringVar(&configPath, "config", "", "overlay client configuration file (JSON)")
	flag.UintVar(&nodeIDFlag, "id", 0, "node id, overrides the config file's node_id")
}

func logFlush() {
	for {
		time.Sleep(time.Minute)
		nlog.Flush()
	}
}

func main() {
	installSignalHandler()
	flag.Parse()

	cfg := &cfgload.Config{}
	if configPath != "" {
		loaded, err := cfgload.Load(configPath)
		if err != nil {
			fatalf("failed to load configuration from %q: %v", configPath, err)
		}
		cfg = loaded
	}
	if nodeIDFlag != 0 {
		cfg.NodeID = uint8(nodeIDFlag)
	}
	nlog.SetVerbosity(cfg.LogVerbosity)
	nlog.SetPrefix(fmt.Sprintf("[node %d] ", cfg.NodeID))

	reg := prometheus.NewRegistry()

	uiIn := make(chan event.UIIn, 64)
	uiOut := make(chan event.UIOut, 64)
	cmdIn := make(chan event.Command, 16)
	pktIn := make(chan proto.Packet, 256)
	events := make(chan event.Event, 64)

	client, err := engine.New(proto.NodeID(cfg.NodeID), time.Duration(cfg.DiscoveryInterval), time.Duration(cfg.SessionTTL),
		engine.Channels{UIIn: uiIn, UIOut: uiOut, CmdIn: cmdIn, PktIn: pktIn, Events: events}, reg)
	if err != nil {
		fatalf("failed to construct client: %v", err)
	}
	defer client.Close()

	go logFlush()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.Run(ctx) })
	g.Go(func() error { return bridgeStdin(ctx, uiIn) })
	g.Go(func() error { return bridgeStdout(ctx, uiOut, events) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(ctx, cfg.MetricsAddr, reg) })
	}

	nlog.Infof("overlay client %d started", cfg.NodeID)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		nlog.Errorf("client %d exited: %v", cfg.NodeID, err)
		nlog.Flush()
		os.Exit(1)
	}
	nlog.Flush()
}

// bridgeStdin decodes one event.UIIn per line of stdin, the UI-to-network
// half of spec.md §6's collaborator interface.
func bridgeStdin(ctx context.Context, uiIn chan<- event.UIIn) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		var m event.UIIn
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			nlog.Warningf("malformed UI input line, skipping: %v", err)
			continue
		}
		select {
		case uiIn <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

// bridgeStdout serializes UIOut replies and controller Events to stdout as
// newline-delimited JSON.
func bridgeStdout(ctx context.Context, uiOut <-chan event.UIOut, events <-chan event.Event) error {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-uiOut:
			writeLine(w, m)
		case e := <-events:
			writeLine(w, e)
		}
	}
}

func writeLine(w *bufio.Writer, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		nlog.Warningf("failed to marshal outbound line: %v", err)
		return
	}
	_, _ = w.Write(data)
	_, _ = w.WriteString("\n")
	_ = w.Flush()
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func installSignalHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		nlog.Flush()
		os.Exit(0)
	}()
}

func fatalf(format string, a ...any) {
	nlog.Errorf(format, a...)
	nlog.Flush()
	os.Exit(1)
}
