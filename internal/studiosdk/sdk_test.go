package studiosdk

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStudio is a minimal in-memory studio serving the public API routes.
type fakeStudio struct {
	mu      sync.Mutex
	apiKey  string
	recipes map[string]*fakeRecipe
	files   map[string][]byte
	folders map[string]bool
	puts    int
}

type fakeRecipe struct {
	version int64
	payload string
}

func newFakeStudio(t *testing.T) (*fakeStudio, *httptest.Server) {
	t.Helper()
	fs := &fakeStudio{
		apiKey:  "secret-key",
		recipes: map[string]*fakeRecipe{"compute_orders": {version: 5, payload: "print(1)"}},
		files:   map[string][]byte{"python/lib.py": []byte("x = 1")},
		folders: map[string]bool{"python": true},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /public/api/projects/{key}/recipes/{$}", fs.listRecipes)
	mux.HandleFunc("GET /public/api/projects/{key}/recipes/{name}", fs.getRecipe)
	mux.HandleFunc("PUT /public/api/projects/{key}/recipes/{name}", fs.putRecipe)
	mux.HandleFunc("GET /public/api/plugins/{id}/contents/{$}", fs.listContents)
	mux.HandleFunc("GET /public/api/plugins/{id}/contents/{path...}", fs.download)
	mux.HandleFunc("POST /public/api/plugins/{id}/contents/{path...}", fs.upload)
	mux.HandleFunc("DELETE /public/api/plugins/{id}/contents/{path...}", fs.delete)
	mux.HandleFunc("POST /public/api/plugins/{id}/folders/{path...}", fs.createFolder)
	mux.HandleFunc("GET /public/api/projects/{key}/libraries/contents/{$}", fs.listContents)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		if !ok || user != fs.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"errorType": "Unauthorized", "message": "bad key"})
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return fs, srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"errorType": "NotFound", "message": "no such item"})
}

func (fs *fakeStudio) listRecipes(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := []map[string]any{}
	for name, rec := range fs.recipes {
		out = append(out, map[string]any{"name": name, "versionTag": map[string]any{"versionNumber": rec.version}})
	}
	writeJSON(w, http.StatusOK, out)
}

func (fs *fakeStudio) getRecipe(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	rec, ok := fs.recipes[r.PathValue("name")]
	if !ok {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"recipe":  map[string]any{"name": r.PathValue("name"), "type": "python", "versionTag": map[string]any{"versionNumber": rec.version}},
		"payload": rec.payload,
	})
}

func (fs *fakeStudio) putRecipe(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	rec, ok := fs.recipes[r.PathValue("name")]
	if !ok {
		notFound(w)
		return
	}
	var body struct {
		Recipe  map[string]any `json:"recipe"`
		Payload string         `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Recipe["type"] != "python" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"errorType": "BadRequest", "message": "definition missing"})
		return
	}
	fs.puts++
	rec.payload = body.Payload
	rec.version++
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (fs *fakeStudio) listContents(w http.ResponseWriter, r *http.Request) {
	mime := "text/x-python"
	writeJSON(w, http.StatusOK, []*FileNode{
		{Path: "/python", Name: "python", Children: []*FileNode{
			{Path: "/python/lib.py", Name: "lib.py", MimeType: &mime, Size: 5},
		}},
	})
}

func (fs *fakeStudio) download(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	data, ok := fs.files[r.PathValue("path")]
	if !ok {
		notFound(w)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func (fs *fakeStudio) upload(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"errorType": "BadRequest", "message": err.Error()})
		return
	}
	data, _ := io.ReadAll(file)
	fs.mu.Lock()
	fs.files[r.PathValue("path")] = data
	fs.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (fs *fakeStudio) delete(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p := r.PathValue("path")
	if _, ok := fs.files[p]; !ok && !fs.folders[p] {
		notFound(w)
		return
	}
	delete(fs.files, p)
	delete(fs.folders, p)
	w.WriteHeader(http.StatusNoContent)
}

func (fs *fakeStudio) createFolder(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.folders[r.PathValue("path")] = true
	w.WriteHeader(http.StatusNoContent)
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(&Config{BaseURL: baseURL, APIKey: "secret-key", Retries: -1})
	require.NoError(t, err)
	return c
}

func TestConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, (&Config{APIKey: "k"}).Validate(), ErrNoServerURL)
	assert.ErrorIs(t, (&Config{BaseURL: "http://studio"}).Validate(), ErrNoAPIKey)
	assert.NoError(t, (&Config{BaseURL: "http://studio", APIKey: "k"}).Validate())

	_, err := New(&Config{})
	assert.ErrorIs(t, err, ErrNoServerURL)
}

func TestRecipeAPI_ListGetSave(t *testing.T) {
	fs, srv := newFakeStudio(t)
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	list, err := c.Recipes().ListRecipes(ctx, "PROJ")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "compute_orders", list[0].Name)
	assert.Equal(t, int64(5), list[0].Version())

	rec, err := c.Recipes().GetRecipe(ctx, "PROJ", "compute_orders")
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.Version)
	assert.Equal(t, []byte("print(1)"), rec.Payload)
	assert.Contains(t, string(rec.Definition), `"python"`)

	version, err := c.Recipes().SaveRecipe(ctx, "PROJ", "compute_orders", []byte("print(2)"))
	require.NoError(t, err)
	assert.Equal(t, int64(6), version)
	assert.Equal(t, 1, fs.puts)
	assert.Equal(t, "print(2)", fs.recipes["compute_orders"].payload)
}

func TestRecipeAPI_NotFound(t *testing.T) {
	_, srv := newFakeStudio(t)
	c := newTestClient(t, srv.URL)

	_, err := c.Recipes().GetRecipe(context.Background(), "PROJ", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Recipes().SaveRecipe(context.Background(), "PROJ", "missing", []byte("x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_APIErrorIsDecoded(t *testing.T) {
	_, srv := newFakeStudio(t)
	c, err := New(&Config{BaseURL: srv.URL, APIKey: "wrong", Retries: -1})
	require.NoError(t, err)

	_, err = c.Recipes().ListRecipes(context.Background(), "PROJ")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Unauthorized", apiErr.ErrorCode())
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestContentsAPI_RoundTrip(t *testing.T) {
	fs, srv := newFakeStudio(t)
	c := newTestClient(t, srv.URL)
	ctx := context.Background()
	plugin := c.Plugin("my-plugin")

	nodes, err := plugin.List(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.True(t, nodes[0].IsFolder())
	require.Len(t, nodes[0].Children, 1)
	assert.False(t, nodes[0].Children[0].IsFolder())

	data, err := plugin.Download(ctx, "python/lib.py")
	require.NoError(t, err)
	assert.Equal(t, []byte("x = 1"), data)

	require.NoError(t, plugin.Upload(ctx, "python/new file.py", []byte("y = 2")))
	assert.Equal(t, []byte("y = 2"), fs.files["python/new file.py"])

	require.NoError(t, plugin.CreateFolder(ctx, "resource/img"))
	assert.True(t, fs.folders["resource/img"])

	require.NoError(t, plugin.Delete(ctx, "python/lib.py"))
	_, err = plugin.Download(ctx, "python/lib.py")
	assert.ErrorIs(t, err, ErrNotFound)

	err = plugin.Delete(ctx, "python/lib.py")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestContentsAPI_LibraryList(t *testing.T) {
	_, srv := newFakeStudio(t)
	c := newTestClient(t, srv.URL)

	nodes, err := c.Library("PROJ").List(context.Background())
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestContentsAPI_RejectsEscapingPaths(t *testing.T) {
	_, srv := newFakeStudio(t)
	c := newTestClient(t, srv.URL)

	for _, p := range []string{"", "/", "../etc/passwd", "a/../../b"} {
		t.Run(p, func(t *testing.T) {
			_, err := c.Plugin("p").Download(context.Background(), p)
			assert.ErrorIs(t, err, ErrInvalidRemoteDir)
		})
	}
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, "python/new%20file.py", escapePath("/python/new file.py"))
	assert.Equal(t, "a/b%3Fc", escapePath("a/b?c"))
	assert.False(t, strings.Contains(escapePath("a/b"), "%2F"))
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistryFromConfig(map[string]*Config{
		"design": {BaseURL: "http://design:11200", APIKey: "k1"},
		"prod":   {BaseURL: "http://prod:11200", APIKey: "k2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"design", "prod"}, r.Instances())

	svc, err := r.Get("design")
	require.NoError(t, err)
	assert.Equal(t, "http://design:11200", svc.(*Client).BaseURL())

	_, err = r.Get("staging")
	assert.ErrorIs(t, err, ErrUnknownInstance)

	_, err = NewRegistryFromConfig(map[string]*Config{"broken": {BaseURL: "http://x"}})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
