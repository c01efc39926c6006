// tabsync-hub runs the direct-channel broker as a standalone daemon. Normally
// the first session process hosts the hub itself; running this instead keeps
// the broker alive across session restarts.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kartikbazzad/bunbase/tabsync/internal/logger"
	"github.com/kartikbazzad/bunbase/tabsync/internal/notify/hub"
)

func main() {
	socketPath := flag.String("socket", "/tmp/tabsync-hub.sock", "Unix socket path")
	httpAddr := flag.String("http", "", "HTTP listen address for /metrics and /healthz (empty to disable)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	log := logger.Default()
	if *debugMode {
		log.SetLevel(logger.LevelDebug)
	}
	log.Info("Starting tabsync hub...")
	log.Info("Socket: %s", *socketPath)

	os.Remove(*socketPath)
	srv := hub.NewServer(*socketPath, log)
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start hub: %v\n", err)
		os.Exit(1)
	}

	var httpSrv *http.Server
	if *httpAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		httpSrv = &http.Server{Addr: *httpAddr, Handler: mux}
		log.Info("HTTP: %s", *httpAddr)
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("HTTP server: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Info("Shutting down...")
	if httpSrv != nil {
		_ = httpSrv.Close()
	}
	if err := srv.Stop(); err != nil {
		log.Error("Error during hub shutdown: %v", err)
	}
	log.Info("Hub stopped")
}
