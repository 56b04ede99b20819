package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

const testSecret = "test-secret-0123456789"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GARAGEGATE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingSecret verifies the controller refuses to start without
// a shared secret.
func TestRun_MissingSecret(t *testing.T) {
	t.Setenv("GARAGEGATE_SHARED_SECRET", "")
	path := writeConfig(t, `
site:
  id: test-site
database:
  path: "`+filepath.Join(t.TempDir(), "test.db")+`"
`)
	t.Setenv("GARAGEGATE_CONFIG", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail without a shared secret")
	}
	if !strings.Contains(err.Error(), "shared_secret") {
		t.Errorf("error = %v, want mention of shared_secret", err)
	}
}

// TestRun_OfflineStartupAndShutdown starts the controller with no broker
// reachable and checks it shuts down cleanly when the context ends.
func TestRun_OfflineStartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeConfig(t, `
site:
  id: test-site

security:
  shared_secret: "`+testSecret+`"

database:
  path: "`+filepath.Join(tmpDir, "test.db")+`"
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "test-offline"
  qos: 1

authorization:
  seed_plates:
    - plate: "ab12 cde"
      metadata:
        owner: test

api:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout
`)
	t.Setenv("GARAGEGATE_CONFIG", path)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() = %v, want clean shutdown", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "test.db")); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("GARAGEGATE_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("GARAGEGATE_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestGoStage_DownstreamOutlivesUpstream verifies the next stage keeps
// running until the upstream stage has returned, so items emitted while
// upstream drains are still consumed.
func TestGoStage_DownstreamOutlivesUpstream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	events := make(chan int, 4)
	upstreamStopped := goStage(gctx, g, func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		events <- 1
		return nil
	})

	var got []int
	g.Go(func() error {
		for {
			select {
			case e := <-events:
				got = append(got, e)
			case <-upstreamStopped.Done():
				for {
					select {
					case e := <-events:
						got = append(got, e)
					default:
						return nil
					}
				}
			}
		}
	})

	time.Sleep(10 * time.Millisecond)
	if upstreamStopped.Err() != nil {
		t.Fatal("stage context cancelled before shutdown")
	}

	cancel()
	if err := g.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("consumed %d events, want the one emitted during shutdown", len(got))
	}
}

// TestGoStage_ErrorStopsPipeline verifies a failing stage cancels the group
// and still releases the next stage.
func TestGoStage_ErrorStopsPipeline(t *testing.T) {
	boom := errors.New("boom")
	g, gctx := errgroup.WithContext(context.Background())

	stopped := goStage(gctx, g,
		func(context.Context) error { return boom },
		func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
	)
	g.Go(func() error {
		<-stopped.Done()
		return nil
	})

	if err := g.Wait(); !errors.Is(err, boom) {
		t.Errorf("Wait() error = %v, want boom", err)
	}
}
