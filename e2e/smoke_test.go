//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const repoRootRel = ".." // relative to ./e2e

const readingsTopic = "sensorlog/e2e/readings"

func TestSmoke_LogServeForward(t *testing.T) {
	repoRoot := repoRootPath(t)

	sqlitePath := startSQLite(t)
	brokerHost, brokerPort := startMosquitto(t)
	messages := subscribe(t, brokerHost, brokerPort)

	bin := buildBinary(t, repoRoot, "./cmd/sensorlog", "sensorlog")
	addr := pickFreeAddr(t)

	cmd := exec.Command(bin)
	cmd.Env = append(os.Environ(),
		"APP_ENV=dev",
		"LOG_LEVEL=info",
		"HTTP_ADDR="+addr,
		"RUN_MODE=all",
		"DB_DRIVER=sqlite3",
		"SQLITE_PATH="+sqlitePath,
		"SENSOR_DRIVER=fake",
		"SAMPLE_INTERVAL=200ms",
		"MQTT_BROKER="+brokerHost,
		"MQTT_PORT="+brokerPort.Port(),
		"MQTT_TOPIC="+readingsTopic,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	client := &http.Client{Timeout: 2 * time.Second}
	base := "http://" + addr

	waitForOK(t, client, base+"/healthz", 10*time.Second)

	var entries []map[string]any
	deadline := time.Now().Add(10 * time.Second)
	for len(entries) < 3 && time.Now().Before(deadline) {
		entries = nil
		getJSON(t, client, base+"/api/data", &entries)
		time.Sleep(200 * time.Millisecond)
	}
	if len(entries) < 3 {
		t.Fatalf("got %d readings from /api/data; want at least 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		prev, _ := entries[i-1]["timestamp"].(string)
		cur, _ := entries[i]["timestamp"].(string)
		if cur < prev {
			t.Fatalf("entries out of order: %q before %q", prev, cur)
		}
	}

	var live map[string]float64
	getJSON(t, client, base+"/api/sensor", &live)
	if live["pressure"] < 900 {
		t.Fatalf("live pressure = %v; want a plausible value", live["pressure"])
	}

	select {
	case payload := <-messages:
		var msg map[string]any
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("decode mqtt payload: %v", err)
		}
		for _, key := range []string{"id", "timestamp", "temperature_c", "pressure_hpa", "humidity_pct"} {
			if _, ok := msg[key]; !ok {
				t.Errorf("mqtt payload missing %q: %s", key, payload)
			}
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no reading forwarded over mqtt")
	}

	stopServer(t, cmd)

	tool := buildBinary(t, repoRoot, "./cmd/sensorlog-db", "sensorlog-db")
	stats := exec.Command(tool, "stats")
	stats.Env = append(os.Environ(), "SQLITE_PATH="+sqlitePath)
	out, err := stats.CombinedOutput()
	if err != nil {
		t.Fatalf("sensorlog-db stats: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "migrations: 0001") {
		t.Fatalf("stats output = %q", out)
	}
}

func startSQLite(t *testing.T) string {
	t.Helper()

	hostDir := t.TempDir()
	dbPath := filepath.Join(hostDir, "sensor_data.db")

	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:      "nouchka/sqlite3:latest",
		WorkingDir: "/data",
		Entrypoint: []string{"sh", "-c"},
		Cmd: []string{
			"sqlite3 /data/sensor_data.db \"PRAGMA journal_mode=WAL;\" && " +
				"chmod 666 /data/sensor_data.db && " +
				"echo 'sqlite ready' && " +
				"tail -f /dev/null",
		},
		HostConfigModifier: func(hc *container.HostConfig) {
			hc.Binds = append(hc.Binds, hostDir+":/data")
		},
		WaitingFor: wait.ForLog("sqlite ready").WithStartupTimeout(30 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start sqlite container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("sqlite db file not created: %v", err)
	}
	return dbPath
}

func startMosquitto(t *testing.T) (string, nat.Port) {
	t.Helper()

	ctx := context.Background()
	port := nat.Port("1883/tcp")

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2",
		ExposedPorts: []string{string(port)},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort(port).WithStartupTimeout(30 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("mosquitto host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("mosquitto port: %v", err)
	}
	return host, mapped
}

func subscribe(t *testing.T, host string, port nat.Port) <-chan []byte {
	t.Helper()

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%s", host, port.Port()))
	opts.SetClientID("sensorlog-e2e-subscriber")
	client := paho.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		t.Fatalf("mqtt connect: %v", token.Error())
	}
	t.Cleanup(func() { client.Disconnect(100) })

	out := make(chan []byte, 16)
	token = client.Subscribe(readingsTopic, 1, func(_ paho.Client, m paho.Message) {
		select {
		case out <- m.Payload():
		default:
		}
	})
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		t.Fatalf("mqtt subscribe: %v", token.Error())
	}
	return out
}

func repoRootPath(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	repo := filepath.Clean(filepath.Join(wd, repoRootRel))
	if _, err := os.Stat(filepath.Join(repo, "go.mod")); err != nil {
		t.Fatalf("repo root %q does not contain go.mod: %v", repo, err)
	}
	return repo
}

func buildBinary(t *testing.T, repoRoot, pkg, name string) string {
	t.Helper()

	out := filepath.Join(t.TempDir(), name)

	build := exec.Command("go", "build", "-o", out, pkg)
	build.Dir = repoRoot
	build.Env = os.Environ()

	b, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("go build %s failed: %v\n%s", pkg, err, string(b))
	}
	return out
}

func pickFreeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen :0: %v", err)
	}
	defer ln.Close()

	return ln.Addr().String()
}

func getJSON(t *testing.T, client *http.Client, url string, v any) {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status=%d want=%d", url, resp.StatusCode, http.StatusOK)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func waitForOK(t *testing.T, client *http.Client, url string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server not healthy after %s: %s", timeout, url)
}

func stopServer(t *testing.T, cmd *exec.Cmd) {
	t.Helper()

	_ = cmd.Process.Signal(syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		t.Fatalf("server did not exit in time")
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				t.Fatalf("server exited non-zero: %v", err)
			}
			t.Fatalf("server wait error: %v", err)
		}
	}
}
