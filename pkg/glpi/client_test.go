package glpi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmasdoufi/warranty/pkg/asd"
	"github.com/nmasdoufi/warranty/pkg/config"
	"github.com/nmasdoufi/warranty/pkg/inventory"
)

func sampleRecord() inventory.WarrantyRecord {
	bought := time.Date(2012, time.May, 3, 0, 0, 0, 0, time.UTC)
	return inventory.NewWarrantyRecord(inventory.RecordInput{
		Serial:       "C02HK0ABDV13",
		Description:  "MacBook Pro (13-inch, Mid 2012)",
		PurchaseDate: &bought,
		Coverage:     inventory.ActiveUntil(time.Date(2015, time.May, 3, 0, 0, 0, 0, time.UTC)),
		ASDVersion:   "3S150",
	})
}

func TestPushWarrantyLegacySession(t *testing.T) {
	var (
		mu       sync.Mutex
		pushed   warrantyPayload
		sessions int
		killed   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.URL.Path {
		case "/apirest.php/initSession":
			sessions++
			assert.Equal(t, "user_token secret", r.Header.Get("Authorization"))
			assert.Equal(t, "app", r.Header.Get("App-Token"))
			fmt.Fprint(w, `{"session_token":"sess-1"}`)
		case "/apirest.php/inventory":
			assert.Equal(t, "sess-1", r.Header.Get("Session-Token"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&pushed))
			w.WriteHeader(http.StatusCreated)
		case "/apirest.php/killSession":
			killed = r.Header.Get("Session-Token")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(config.GLPIConfig{BaseURL: srv.URL + "/apirest.php/", AppToken: "app", UserToken: "secret"}, 5*time.Second)
	require.True(t, c.Enabled())
	require.NoError(t, c.PushWarranty(context.Background(), sampleRecord()))
	require.NoError(t, c.PushWarranty(context.Background(), sampleRecord()))
	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()), "second close is a no-op")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, sessions, "session token is reused")
	assert.Equal(t, "sess-1", killed)
	assert.Equal(t, warrantyPayload{
		Serial:             "C02HK0ABDV13",
		Manufacturer:       "Apple",
		Model:              "MacBook Pro (13-inch, Mid 2012)",
		PurchaseDate:       "2012-05-03",
		WarrantyStatus:     "active",
		WarrantyExpiration: "2015-05-03",
		ASDVersion:         "3S150",
	}, pushed)
}

func TestPushWarrantyOAuth(t *testing.T) {
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api.php/token":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "password", r.PostForm.Get("grant_type"))
			assert.Equal(t, "api", r.PostForm.Get("scope"))
			fmt.Fprint(w, `{"access_token":"tok","token_type":"Bearer","expires_in":3600}`)
		case "/api.php/v2.1/inventory":
			auth <- r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(config.GLPIConfig{
		BaseURL: srv.URL + "/api.php/v2.1",
		OAuth:   &config.GLPIOAuthConfig{ClientID: "id", ClientSecret: "s", Username: "bob", Password: "pw"},
	}, 5*time.Second)
	require.NoError(t, c.PushWarranty(context.Background(), sampleRecord()))
	assert.Equal(t, "Bearer tok", <-auth)
}

func TestPushWarrantyFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/apirest.php/initSession" {
			fmt.Fprint(w, `{"session_token":"sess"}`)
			return
		}
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(config.GLPIConfig{BaseURL: srv.URL + "/apirest.php", UserToken: "t"}, 5*time.Second)
	err := c.PushWarranty(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "C02HK0ABDV13")

	disabled := NewClient(config.GLPIConfig{}, time.Second)
	assert.False(t, disabled.Enabled())
	assert.Error(t, disabled.PushWarranty(context.Background(), sampleRecord()))

	noToken := NewClient(config.GLPIConfig{BaseURL: srv.URL + "/apirest.php"}, time.Second)
	assert.Error(t, noToken.PushWarranty(context.Background(), sampleRecord()))
}

func TestNewWarrantyPayloadWithoutExpiration(t *testing.T) {
	made := time.Date(2010, time.June, 7, 0, 0, 0, 0, time.UTC)
	p := newWarrantyPayload(inventory.NewWarrantyRecord(inventory.RecordInput{
		Serial:       "W8812ABCDEF",
		Coverage:     inventory.Coverage{Status: inventory.CoverageExpired},
		Manufactured: &made,
	}))
	assert.Equal(t, "expired", p.WarrantyStatus)
	assert.Empty(t, p.WarrantyExpiration)
	assert.Equal(t, "2010-06-07", p.ManufactureDate)
	assert.Equal(t, asd.Unknown, p.ASDVersion)
}

func TestPushWarrantyBaseURLForms(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "/initSession") {
			fmt.Fprint(w, `{"session_token":"s"}`)
		}
	}))
	defer srv.Close()

	for _, base := range []string{
		srv.URL + "/apirest.php",
		"  " + srv.URL + "/apirest.php/ ",
		srv.URL + "/apirest.php//",
	} {
		c := NewClient(config.GLPIConfig{BaseURL: base, UserToken: "t"}, 5*time.Second)
		require.NoError(t, c.PushWarranty(context.Background(), sampleRecord()), "base %q", base)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, p := range paths {
		want := "/apirest.php/initSession"
		if i%2 == 1 {
			want = "/apirest.php/inventory"
		}
		assert.Equal(t, want, p, "request %d", i)
	}
	assert.Len(t, paths, 6)
}

func TestPushWarrantyOAuthNeedsHighLevelAPI(t *testing.T) {
	c := NewClient(config.GLPIConfig{
		BaseURL: "https://glpi.example/apirest.php",
		OAuth:   &config.GLPIOAuthConfig{ClientID: "id", ClientSecret: "s", Username: "bob", Password: "pw"},
	}, time.Second)
	err := c.PushWarranty(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.php")
}
