// Command a2jmidid bridges ALSA sequencer MIDI ports into the JACK MIDI
// graph and back.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sys/unix"

	"github.com/jackaudio/a2jmidid/bridge"
	"github.com/jackaudio/a2jmidid/internal/bridgecfg"
	"github.com/jackaudio/a2jmidid/internal/bridgelog"
	"github.com/jackaudio/a2jmidid/internal/metrics"
	"github.com/jackaudio/a2jmidid/internal/remotectl"
)

// metricsAddr is where remote-control mode exposes Prometheus metrics for
// the monitoring tools that typically accompany a dbus-managed service.
const metricsAddr = "127.0.0.1:9401"

const clientName = "a2jmidid"

// stopGrace is the timeout of the contexts main passes to the bridge's
// Stop/Exit and to the metrics server's Shutdown. Bridge.Stop does not
// consult its context: it waits for every worker to exit however long
// that takes.
const stopGrace = 5 * time.Second

func configPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "a2jmidid", "a2jmidid.conf")
	}
	return "a2jmidid.conf"
}

func main() {
	log := bridgelog.Default("main")

	path := configPath()
	fileOpts, err := bridgecfg.Load(path)
	if err != nil {
		log.Warn("failed to load config file, using defaults", "path", path, "error", err)
	}

	opts := bridgecfg.ParseFlags(os.Args, fileOpts)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
		if err := bridgecfg.Save(path, opts); err != nil {
			log.Warn("failed to persist config file", "path", path, "error", err)
		}
	}

	lockCurrentMemory(log)

	seq := bridge.NewUdevSeqClient()
	jack := bridge.NewPortaudioJackClient()
	b := bridge.NewBridge(seq, jack, clientName, opts.JackServerName)
	if err := b.SetHWExport(opts.ExportHWPorts); err != nil {
		log.Error("failed to set hardware export option", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if opts.RemoteControl {
		runRemoteControlled(ctx, log, b)
		return
	}
	runStandalone(ctx, log, b)
}

func runStandalone(ctx context.Context, log *bridgelog.Logger, b *bridge.Bridge) {
	if err := b.Start(ctx); err != nil {
		log.Error("failed to start bridge", "error", err)
		os.Exit(1)
	}
	log.Info("bridge running", "export_hw", b.HWExport())

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopGrace)
	defer stopCancel()
	if err := b.Stop(stopCtx); err != nil {
		log.Error("error while stopping bridge", "error", err)
		os.Exit(1)
	}
}

func runRemoteControlled(ctx context.Context, log *bridgelog.Logger, b *bridge.Bridge) {
	ctl := remotectl.New(b, "")
	log.Info("remote control mode", "session", ctl.SessionID())

	if err := ctl.Start(ctx, 0); err != nil {
		log.Error("failed to start bridge", "error", err)
		os.Exit(1)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(metrics.NewRegistry(b))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server exited", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), stopGrace)
	_ = srv.Shutdown(shutdownCtx)
	shutdownCancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopGrace)
	defer stopCancel()
	if err := ctl.Exit(stopCtx); err != nil {
		log.Error("error while stopping bridge", "error", err)
		os.Exit(1)
	}
}

func lockCurrentMemory(log *bridgelog.Logger) {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		log.Warn("mlockall failed, realtime callback may page fault", "error", err)
	}
}
