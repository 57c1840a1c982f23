package e2e

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anemtools/rdvwatcher/internal/control"
	"github.com/anemtools/rdvwatcher/internal/core/config"
)

func TestGracefulShutdown(t *testing.T) {
	// A stub upstream that always answers, so the monitor spins without
	// tripping into recovery mode.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"eligible":false,"message":"not eligible"}`)
	}))
	defer upstream.Close()

	cfg := config.AppConfig{
		Server:  config.ServerConfig{Port: 0},
		Service: config.ServiceConfig{BaseURL: upstream.URL, SiteCheckURL: upstream.URL},
		Engine: config.EngineSettings{
			MonitoringInterval: config.Duration(100 * time.Millisecond),
			MinMemberDelay:     config.Duration(time.Millisecond),
			MaxMemberDelay:     config.Duration(2 * time.Millisecond),
			BackoffGeneral:     config.Duration(time.Millisecond),
			Backoff429:         config.Duration(time.Millisecond),
			RequestTimeout:     config.Duration(time.Second),
			MaxRetries:         1,
		},
		Documents: config.DocumentsConfig{BaseDir: t.TempDir()},
	}

	ctx, cancel := context.WithCancel(context.Background())

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}

	startError := make(chan error, 1)
	go func() {
		startError <- app.Start(ctx)
	}()

	// Let it run for a bit
	time.Sleep(500 * time.Millisecond)

	// Trigger shutdown
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	if err := app.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	select {
	case err := <-startError:
		if err != nil && err != context.Canceled {
			t.Errorf("Start returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Start did not return after cancellation")
	}

	snap := app.Monitor().Snapshot()
	if snap.ConnectionLost {
		t.Error("monitor should not be in connection-lost mode")
	}
	if !snap.InitialScanDone {
		t.Error("initial scan over the empty roster should have completed")
	}
}
