// Command meshpeer is a runnable demonstration of the peer engine, the
// Go-native analogue of the reference's demo_server.py / main.py: two
// peers wired over a pair of cross-linked file pipes or unixgram
// sockets, one side optionally sending a file while both print every
// message they receive.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mesharc/p2pcore/config"
	"github.com/mesharc/p2pcore/dedupstore"
	"github.com/mesharc/p2pcore/metrics"
	"github.com/mesharc/p2pcore/peer"
	"github.com/mesharc/p2pcore/transport"
)

// printingHandler implements peer.Handler by logging every upcall and
// writing received files to disk with a role-prefixed name, matching the
// reference demo's on_file behavior.
type printingHandler struct {
	log  *log.Logger
	role string
}

func (h *printingHandler) OnReliableMessage(payload []byte) {
	h.log.Infof("reliable message: %s", payload)
}

func (h *printingHandler) OnUnreliableMessage(payload []byte) {
	h.log.Infof("unreliable message: %s", payload)
}

func (h *printingHandler) OnReliableStreamMessage(payload []byte, streamID uint32) {
	h.log.Infof("reliable stream message: stream=%d %s", streamID, payload)
}

func (h *printingHandler) OnUnreliableStreamMessage(payload []byte, streamID uint32) {
	h.log.Infof("unreliable stream message: stream=%d %s", streamID, payload)
}

func (h *printingHandler) OnFile(filename string, data []byte) {
	out := fmt.Sprintf("%s_transferred_%s", h.role, filepath.Base(filename))
	h.log.Infof("file received: %s (%d bytes) -> %s", filename, len(data), out)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		h.log.Errorf("write %q: %v", out, err)
	}
}

func main() {
	var (
		role          string
		dir           string
		sendPath      string
		configPath    string
		metricsAddr   string
		transportKind string
		showVersion   bool
	)
	flag.StringVar(&role, "role", "server", "peer role: \"client\" or \"server\"")
	flag.StringVar(&dir, "dir", ".", "directory holding the cross-linked pipe or socket files")
	flag.StringVar(&sendPath, "send", "", "path of a file to send once the peer starts (optional)")
	flag.StringVar(&configPath, "config", "", "optional TOML config file (defaults to the reference constants)")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	flag.StringVar(&transportKind, "transport", "filepipe", "wire transport: \"filepipe\" or \"unixgram\"")
	flag.BoolVar(&showVersion, "version", false, "print build version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(versioninfo.Short())
		return
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "meshpeer"})

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			logger.Fatalf("load config %q: %v", configPath, err)
		}
		cfg = loaded
	}

	// client writes to "c-to-s" and reads "s-to-c"; server is the mirror.
	// With -transport=unixgram the same two paths instead name each
	// peer's own bound socket ("c-to-s" becomes the client's local
	// address, "s-to-c" the server's).
	var outPath, inPath string
	switch role {
	case "client":
		outPath, inPath = filepath.Join(dir, "c-to-s"), filepath.Join(dir, "s-to-c")
	case "server":
		outPath, inPath = filepath.Join(dir, "s-to-c"), filepath.Join(dir, "c-to-s")
	default:
		logger.Fatalf("unknown role %q: must be \"client\" or \"server\"", role)
	}

	// closableTransport is the local shape both transport.FilePipe and
	// transport.UnixgramTransport satisfy: a Transport that also needs
	// to release underlying resources (files, sockets) on shutdown.
	type closableTransport interface {
		transport.Transport
		Close() error
	}

	var link closableTransport
	switch transportKind {
	case "filepipe":
		pipe, err := transport.NewFilePipe(outPath, inPath)
		if err != nil {
			logger.Fatalf("open file pipe: %v", err)
		}
		link = pipe
	case "unixgram":
		if err := os.Remove(outPath); err != nil && !os.IsNotExist(err) {
			logger.Fatalf("remove stale socket %q: %v", outPath, err)
		}
		sock, err := transport.DialUnixgram(outPath, inPath)
		if err != nil {
			logger.Fatalf("dial unixgram: %v", err)
		}
		link = sock
	default:
		logger.Fatalf("unknown transport %q: must be \"filepipe\" or \"unixgram\"", transportKind)
	}
	defer link.Close()

	reg := prometheus.NewRegistry()
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Errorf("metrics server: %v", err)
			}
		}()
		logger.Infof("serving metrics on %s/metrics", metricsAddr)
	}

	p := peer.New(link, &printingHandler{log: logger, role: role},
		peer.WithConfig(cfg),
		peer.WithLogger(logger),
		peer.WithMetrics(metrics.New(reg)),
		peer.WithDedupStore(dedupstore.NewMemStore()),
	)
	defer p.Close()

	if sendPath != "" {
		if err := p.SendFile(sendPath); err != nil {
			logger.Fatalf("send file %q: %v", sendPath, err)
		}
		logger.Infof("sending %s", sendPath)
	}

	logger.Infof("%s peer running in %s (ctrl-c to stop)", role, dir)
	select {}
}
