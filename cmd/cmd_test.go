package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/reliefweb-corpus/internal/api"
	"github.com/JakeFAU/reliefweb-corpus/internal/app"
	"github.com/JakeFAU/reliefweb-corpus/internal/config"
	"github.com/JakeFAU/reliefweb-corpus/internal/storage/memory"
)

var reports = []string{
	`{"id":1,"fields":{"title":"Flood update","body":"Floods displaced families.","date":{"changed":"2024-03-01T10:00:00+00:00"},"country":[{"name":"Chad"}]}}`,
	`{"id":2,"fields":{"title":"Cholera","body":"Clinics treated 42 patients.","date":{"changed":"2024-03-02T10:00:00+00:00"},"country":[{"name":"Sudan"}]}}`,
}

// upstream serves reports one per page in offset order.
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params struct {
			Offset int `json:"offset"`
		}
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := "[]"
		count := 0
		if params.Offset < len(reports) {
			data = "[" + reports[params.Offset] + "]"
			count = 1
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"time":1,"took":1,"totalCount":%d,"count":%d,"data":%s}`, len(reports), count, data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir, url string) string {
	t.Helper()
	body := fmt.Sprintf(`
logging:
  level: error
source:
  url: %s
  appname: test-suite
  mode: incremental
  backoff_initial: 1ms
  backoff_max: 1ms
  max_rps: 0
crawler:
  page_limit: 1
  max_calls: 5
  quota_waits:
    "0": 0
storage:
  driver: sqlite
  dsn: %s
export:
  backend: local
  base_dir: %s
  publisher: memory
  topic: corpus-ready
`, url, filepath.Join(dir, "corpus.db"), filepath.Join(dir, "export"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testFactory(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger, app.Options{Registerer: prometheus.NewRegistry()})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(testFactory)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := run(context.Background(), root)
	return out.String(), err
}

func TestCrawlAnnotateExport(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, upstream(t).URL)

	out, err := execute(t, "--config", cfgPath, "crawl")
	require.NoError(t, err)
	var crawl CrawlSummary
	require.NoError(t, json.Unmarshal([]byte(out), &crawl))
	assert.Equal(t, "incremental", crawl.Mode)
	assert.Equal(t, "exhausted", crawl.Stop)
	assert.Equal(t, 2, crawl.Records)
	assert.Equal(t, 3, crawl.Calls)

	out, err = execute(t, "--config", cfgPath, "annotate")
	require.NoError(t, err)
	var ann AnnotateSummary
	require.NoError(t, json.Unmarshal([]byte(out), &ann))
	assert.Equal(t, 2, ann.Written)
	assert.Equal(t, "drained", ann.Stop)
	assert.Positive(t, ann.Tokens)

	// Nothing changed upstream, so a second pass has no work.
	out, err = execute(t, "--config", cfgPath, "annotate")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &ann))
	assert.Zero(t, ann.Written)

	out, err = execute(t, "--config", cfgPath, "export", "--path", "corpus.vert")
	require.NoError(t, err)
	var notice struct {
		URI       string `json:"uri"`
		Documents int    `json:"documents"`
		MessageID string `json:"message_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &notice))
	assert.Equal(t, 2, notice.Documents)
	assert.NotEmpty(t, notice.MessageID)

	corpus, err := os.ReadFile(filepath.Join(dir, "export", "corpus.vert"))
	require.NoError(t, err)
	text := string(corpus)
	assert.Contains(t, text, `<doc id="1"`)
	assert.Contains(t, text, `country_name="Sudan"`)
	assert.Contains(t, text, "<s>\n")
	assert.Contains(t, text, "[number]-m")

	_, err = execute(t, "--config", cfgPath, "tagset")
	require.NoError(t, err)
	tags, err := os.ReadFile(filepath.Join(dir, "export", "tagset.txt"))
	require.NoError(t, err)
	assert.Contains(t, strings.Split(strings.TrimSpace(string(tags)), "\n"), "CD")
}

func TestCrawlRecordsAbout(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, upstream(t).URL)

	_, err := execute(t, "--config", cfgPath, "crawl", "--mode", "full", "--max-calls", "1")
	require.NoError(t, err)

	store, err := app.OpenStore(context.Background(), config.StorageConfig{
		Driver:        config.DriverSQLite,
		DSN:           filepath.Join(dir, "corpus.db"),
		BusyTimeoutMS: 1000,
		Synchronous:   "NORMAL",
	}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	about, err := store.About(context.Background())
	require.NoError(t, err)
	var crawl CrawlSummary
	require.NoError(t, json.Unmarshal([]byte(about["last_crawl"]), &crawl))
	assert.Equal(t, "full", crawl.Mode)
	assert.Equal(t, "max_calls", crawl.Stop)
	assert.Equal(t, 1, crawl.Records)
}

func TestCrawlRejectsUnknownMode(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, upstream(t).URL)

	_, err := execute(t, "--config", cfgPath, "crawl", "--mode", "sideways")
	require.Error(t, err)
}

func TestMissingConfigFileFails(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "crawl")
	require.Error(t, err)
}

func TestResolveAppWithoutServices(t *testing.T) {
	t.Parallel()
	_, err := resolveApp(context.Background())
	require.Error(t, err)
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	handler := api.NewServer(memory.New(zap.NewNop()), nil, api.Config{}, zap.NewNop()).Handler()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, handler, time.Second, zap.NewNop()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
