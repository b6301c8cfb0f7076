package viaduct

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/viaduct-io/viaduct/circuit"
	"github.com/viaduct-io/viaduct/metrics"
	"github.com/viaduct-io/viaduct/proxy"
)

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestCreateLogOutput(t *testing.T) {
	out, err := createLogOutput("")
	if err != nil || out != os.Stderr {
		t.Fatalf("expected stderr for the empty name, got %v, %v", out, err)
	}

	out, err = createLogOutput("/dev/stdout")
	if err != nil || out != os.Stdout {
		t.Fatalf("expected stdout, got %v, %v", out, err)
	}

	path := filepath.Join(t.TempDir(), "application.log")
	out, err = createLogOutput(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := io.WriteString(out, "test entry\n"); err != nil {
		t.Fatal(err)
	}

	if f, ok := out.(*os.File); ok {
		f.Close()
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if string(content) != "test entry\n" {
		t.Errorf("unexpected log file content: %q", content)
	}
}

func TestProxyFlags(t *testing.T) {
	for _, test := range []struct {
		name    string
		options Options
		flags   proxy.Flags
	}{{
		"none",
		Options{},
		proxy.FlagsNone,
	}, {
		"insecure",
		Options{Insecure: true},
		proxy.Insecure,
	}, {
		"all",
		Options{Insecure: true, ProxyPreserveHost: true, RemoveHopHeaders: true},
		proxy.Insecure | proxy.PreserveHost | proxy.HopHeadersRemoval,
	}} {
		t.Run(test.name, func(t *testing.T) {
			if flags := proxyFlags(test.options); flags != test.flags {
				t.Errorf("expected flags %v, got %v", test.flags, flags)
			}
		})
	}
}

func TestLoadBreakerSettings(t *testing.T) {
	path := writeTestFile(t, "breakers.yaml", `
- type: consecutive
  failures: 5
  timeout: 15s
- name: payments
  type: rate
  window: 200
  failures: 30
`)

	settings, err := loadBreakerSettings(Options{
		BreakersFile:    path,
		BreakerSettings: []circuit.BreakerSettings{{Name: "extra", Type: circuit.ConsecutiveFailures}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(settings) != 3 {
		t.Fatalf("expected 3 settings, got %d", len(settings))
	}

	defaults := settings[0]
	if defaults.Name != "" || defaults.Type != circuit.ConsecutiveFailures ||
		defaults.Failures != 5 || defaults.Timeout != 15*time.Second {
		t.Errorf("unexpected default settings: %+v", defaults)
	}

	payments := settings[1]
	if payments.Name != "payments" || payments.Type != circuit.FailureRate ||
		payments.Window != 200 || payments.Failures != 30 {
		t.Errorf("unexpected payments settings: %+v", payments)
	}

	if settings[2].Name != "extra" {
		t.Errorf("expected the programmatic settings last, got %+v", settings[2])
	}
}

func TestLoadBreakerSettingsFailure(t *testing.T) {
	if _, err := loadBreakerSettings(Options{BreakersFile: "no/such/file.yaml"}); err == nil {
		t.Error("expected an error for a missing file")
	}

	path := writeTestFile(t, "breakers.yaml", "{invalid")
	if _, err := loadBreakerSettings(Options{BreakersFile: path}); err == nil {
		t.Error("expected an error for an invalid document")
	}
}

func TestCreateDataClients(t *testing.T) {
	clients, defaults, err := createDataClients(Options{})
	if err != nil {
		t.Fatal(err)
	}

	if len(clients) != 0 || len(defaults) != 0 {
		t.Fatalf("expected no clients without a routes file, got %d, %d", len(clients), len(defaults))
	}

	path := writeTestFile(t, "routes.yaml", `
routes:
  - id: all
    uri: https://backend.example.org

defaultFilters:
  - addResponseHeader=X-Gateway,viaduct
`)

	clients, defaults, err = createDataClients(Options{RoutesFile: path})
	if err != nil {
		t.Fatal(err)
	}

	if len(clients) != 1 {
		t.Fatalf("expected one client, got %d", len(clients))
	}

	if len(defaults) != 1 || defaults[0].Name != "addResponseHeader" {
		t.Errorf("unexpected default filters: %v", defaults)
	}

	if _, _, err := createDataClients(Options{RoutesFile: "no/such/routes.yaml"}); err == nil {
		t.Error("expected an error for a missing routes file")
	}

	clients, _, err = createDataClients(Options{
		RoutesFile:   path,
		InlineRoutes: `[{id: hello, uri: "https://backend.example.org"}]`,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(clients) != 2 {
		t.Errorf("expected the inline routes as a second client, got %d", len(clients))
	}

	if _, _, err := createDataClients(Options{InlineRoutes: "{invalid"}); err == nil {
		t.Error("expected an error for invalid inline routes")
	}
}

func TestInitMetrics(t *testing.T) {
	saved := metrics.Default
	defer func() { metrics.Default = saved }()

	if _, err := initMetrics(Options{MetricsFlavour: "statsd"}); err == nil {
		t.Error("expected an error for an unsupported flavour")
	}

	m, err := initMetrics(Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if metrics.Default != m {
		t.Error("expected the default collector to be replaced")
	}
}

func TestCreateLoadBalancer(t *testing.T) {
	lb, err := createLoadBalancer(Options{LoadBalancerGroups: map[string][]string{
		"payments": {"http://10.0.0.1:8080", "http://10.0.0.2:8080"},
	}})
	if err != nil {
		t.Fatal(err)
	}

	if lb.Get("payments") == nil {
		t.Error("expected the group to be registered")
	}

	if _, err := createLoadBalancer(Options{LoadBalancerGroups: map[string][]string{
		"broken": {"not a url"},
	}}); err == nil {
		t.Error("expected an error for an invalid endpoint")
	}
}

func availableAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	return l.Addr().String()
}

func TestRunServesTraffic(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "hello from the backend")
	}))
	defer backend.Close()

	routes := writeTestFile(t, "routes.yaml", fmt.Sprintf(`
routes:
  - id: all
    uri: %s
`, backend.URL))

	address := availableAddress(t)
	support := availableAddress(t)
	options := Options{
		Address:           address,
		RoutesFile:        routes,
		SourcePollTimeout: 10 * time.Millisecond,
		SupportListener:   support,
		AccessLogDisabled: true,
	}

	// Run only returns on a failure, the listeners live until the end
	// of the test binary.
	errc := make(chan error, 1)
	go func() { errc <- Run(options) }()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	get := func(url string) (int, string) {
		rsp, err := client.Get(url)
		if err != nil {
			return 0, ""
		}
		defer rsp.Body.Close()

		b, err := io.ReadAll(rsp.Body)
		if err != nil {
			return 0, ""
		}

		return rsp.StatusCode, string(b)
	}

	deadline := time.Now().Add(9 * time.Second)
	for {
		select {
		case err := <-errc:
			t.Fatalf("run failed: %v", err)
		default:
		}

		if code, body := get("http://" + address + "/"); code == http.StatusOK {
			if body != "hello from the backend" {
				t.Fatalf("unexpected response body: %q", body)
			}

			break
		}

		if time.Now().After(deadline) {
			t.Fatal("the gateway did not serve the route within the deadline")
		}

		time.Sleep(10 * time.Millisecond)
	}

	for {
		if code, _ := get("http://" + support + "/health"); code == http.StatusOK {
			break
		}

		if time.Now().After(deadline) {
			t.Fatal("the health check did not become available within the deadline")
		}

		time.Sleep(10 * time.Millisecond)
	}

	if code, _ := get("http://" + support + DefaultMetricsPath); code != http.StatusOK {
		t.Errorf("expected the metrics exposition on the support listener, got %d", code)
	}
}
