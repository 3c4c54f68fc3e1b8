package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmasdoufi/warranty/pkg/checker"
	"github.com/nmasdoufi/warranty/pkg/config"
)

type fakeBackend struct {
	*httptest.Server

	mu     sync.Mutex
	pushed []string
	killed int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/sp/product", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cc") == "DV13" {
			fmt.Fprint(w, `<root><configCode>MacBook Pro (13-inch, Mid 2012)</configCode></root>`)
			return
		}
		fmt.Fprint(w, `<root/>`)
	})
	mux.HandleFunc("/wcResults.do", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<p>Repairs and Service Coverage: Active<br/>Estimated Expiration Date: July 20, 2017<br/></p>`)
	})
	mux.HandleFunc("/warrantyChecker.do", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `null({"SERIAL_ID":%q,"PROD_DESCR":"MacBook Pro","COV_END_DATE":""})`, r.URL.Query().Get("sn"))
	})
	mux.HandleFunc("/asdcheck", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "MacBook Pro (13-inch, Mid 2012):3S150\n")
	})
	mux.HandleFunc("/apirest.php/initSession", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"session_token":"sess"}`)
	})
	mux.HandleFunc("/apirest.php/killSession", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.killed++
		fb.mu.Unlock()
	})
	mux.HandleFunc("/apirest.php/inventory", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Serial string `json:"serial"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fb.mu.Lock()
		fb.pushed = append(fb.pushed, body.Serial)
		fb.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Close)
	return fb
}

func writeConfig(t *testing.T, base string, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "warranty.yaml")
	data := fmt.Sprintf(`endpoints:
  product_url: "%[1]s/sp/product?cc=%%s&lang=%%s"
  warranty_url: "%[1]s/wcResults.do"
  legacy_warranty_url: "%[1]s/warrantyChecker.do"
  asd_table_url: "%[1]s/asdcheck"
logging:
  path: %[2]q
%[3]s`, base, filepath.Join(dir, "warranty.log"), extra)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{"WARRANTY_FORMAT", "GLPI_BASE_URL"} {
		t.Setenv(key, "")
	}
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunPrintsReport(t *testing.T) {
	fb := newFakeBackend(t)
	out, err := execute(t, &app{}, "--config", writeConfig(t, fb.URL, ""), " c02hk0abdv13 ")
	require.NoError(t, err)
	assert.Equal(t, `
Serial Number:          C02HK0ABDV13
Product Description:    MacBook Pro (13-inch, Mid 2012)
Coverage End:           2017-07-20
ASD Version:            3S150
`, out)
}

func TestRunUsesLocalSerialWithoutArgs(t *testing.T) {
	fb := newFakeBackend(t)
	var ran []string
	a := &app{runHost: func(_ context.Context, name string, _ ...string) ([]byte, error) {
		ran = append(ran, name)
		return []byte("      Serial Number (system): C02HK0ABDV13\n"), nil
	}}
	out, err := execute(t, a, "--config", writeConfig(t, fb.URL, ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"system_profiler"}, ran)
	assert.True(t, strings.HasPrefix(out, localNotice+"\n"), out)
	assert.Contains(t, out, "Serial Number:          C02HK0ABDV13\n")
}

func TestRunReportsFailedSerials(t *testing.T) {
	fb := newFakeBackend(t)
	out, err := execute(t, &app{}, "--config", writeConfig(t, fb.URL, ""), "BOGUS", "C02HK0ABDV13")

	var be *checker.BatchError
	require.True(t, errors.As(err, &be), "got %v", err)
	assert.Equal(t, 1, be.Failed)
	assert.Contains(t, out, "\nBOGUS: product lookup: ")
	assert.Contains(t, out, "Coverage End:           2017-07-20\n")
}

func TestRunFormatFlag(t *testing.T) {
	fb := newFakeBackend(t)
	out, err := execute(t, &app{}, "--config", writeConfig(t, fb.URL, ""), "--format", "JSON", "C02HK0ABDV13")
	require.NoError(t, err)
	assert.Contains(t, out, "Coverage End:           EXPIRED\n")
	assert.Contains(t, out, "Estimated Manufacture:  2012-04-16\n")

	_, err = execute(t, &app{}, "--config", writeConfig(t, fb.URL, ""), "--format", "xml", "C02HK0ABDV13")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown warranty format")
}

func TestRunPushesToGLPI(t *testing.T) {
	fb := newFakeBackend(t)
	cfgPath := writeConfig(t, fb.URL, fmt.Sprintf("glpi:\n  base_url: %q\n  user_token: tok\n", fb.URL+"/apirest.php"))
	_, err := execute(t, &app{}, "--config", cfgPath, "--glpi", "C02HK0ABDV13", "BOGUS")
	require.Error(t, err)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Equal(t, []string{"C02HK0ABDV13"}, fb.pushed)
	assert.Equal(t, 1, fb.killed)
}

func TestRunGLPIRequiresBaseURL(t *testing.T) {
	fb := newFakeBackend(t)
	_, err := execute(t, &app{}, "--config", writeConfig(t, fb.URL, ""), "--glpi", "C02HK0ABDV13")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "glpi.base_url")
}

func TestMaybePromptGLPIPassword(t *testing.T) {
	cfg := config.Default()
	cfg.GLPI.OAuth = &config.GLPIOAuthConfig{Username: "bob"}
	var out bytes.Buffer
	require.NoError(t, maybePromptGLPIPassword(cfg, strings.NewReader("hunter2\n"), &out))
	assert.Equal(t, "hunter2", cfg.GLPI.OAuth.Password)
	assert.Equal(t, "Enter GLPI password for bob: ", out.String())

	cfg.GLPI.OAuth.Password = ""
	require.NoError(t, maybePromptGLPIPassword(cfg, strings.NewReader("pw"), &out))
	assert.Equal(t, "pw", cfg.GLPI.OAuth.Password)

	cfg.GLPI.OAuth.Password = ""
	assert.Error(t, maybePromptGLPIPassword(cfg, strings.NewReader(""), &out))

	out.Reset()
	cfg.GLPI.OAuth = &config.GLPIOAuthConfig{Username: "bob", Password: "set"}
	require.NoError(t, maybePromptGLPIPassword(cfg, strings.NewReader("ignored\n"), &out))
	assert.Empty(t, out.String())
}
