package asset

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalResource(t *testing.T) {
	dir := t.TempDir()
	modelFile := filepath.Join(dir, "garage.obj")
	if err := os.WriteFile(modelFile, []byte("v 0 0 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := NewResource(modelFile, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	if res.Name() != "garage.obj" {
		t.Fatalf("expected resource name to be garage.obj; got %s", res.Name())
	}
	if res.IsRemote() {
		t.Fatal("expected local resource not to be remote")
	}

	data, err := io.ReadAll(res)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v 0 0 0\n" {
		t.Fatalf("unexpected resource contents %q", data)
	}
}

func TestLocalRelativeResource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "garage.obj"), []byte("mtllib garage.mtl\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "garage.mtl"), []byte("newmtl light\n"), 0644); err != nil {
		t.Fatal(err)
	}

	model, err := NewResource(filepath.Join(dir, "garage.obj"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer model.Close()

	lib, err := NewResource("garage.mtl", model)
	if err != nil {
		t.Fatal(err)
	}
	defer lib.Close()

	if lib.Path() != filepath.Join(dir, "garage.mtl") {
		t.Fatalf("expected material library path to be %s; got %s", filepath.Join(dir, "garage.mtl"), lib.Path())
	}
}

func TestHttpResource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "monke.obj"), []byte("v 0 0 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.FileServer(http.Dir(dir)))
	defer server.Close()

	res, err := NewResource(server.URL+"/monke.obj", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	if !res.IsRemote() || res.Name() != "monke.obj" {
		t.Fatalf("expected remote resource named monke.obj; got %s (remote: %t)", res.Name(), res.IsRemote())
	}

	fetchURL := server.URL + "/file-not-found.obj"
	expError := fmt.Sprintf("resource: could not fetch '%s': status %d", fetchURL, 404)
	_, err = NewResource(fetchURL, nil)
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get: %s; got %v", expError, err)
	}
}

func TestRemoteRelativeResource(t *testing.T) {
	serverHits := 0
	serverFn := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serverHits++
		switch r.URL.Path {
		case "/models/garage.obj", "/models/garage.mtl":
			w.Write([]byte("OK"))
		default:
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(serverFn)
	defer server.Close()

	model, err := NewResource(server.URL+"/models/garage.obj", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer model.Close()

	lib, err := NewResource("garage.mtl", model)
	if err != nil {
		t.Fatal(err)
	}
	defer lib.Close()

	if serverHits != 2 {
		t.Fatalf("expected server to receive 2 requests; got %d", serverHits)
	}
}

func TestUnsupportedResourceScheme(t *testing.T) {
	expError := "resource: unsupported scheme 'gopher'"
	_, err := NewResource("gopher://digging.obj", nil)
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get: %s; got %v", expError, err)
	}
}

func TestHasExtension(t *testing.T) {
	type spec struct {
		location string
		exp      bool
	}
	specs := []spec{
		{"garage.obj", true},
		{"models/MONKE.OBJ", true},
		{"http://host/scene.obj", true},
		{"scene.fbx", false},
		{"obj", false},
	}

	for index, s := range specs {
		if got := HasExtension(s.location, ".obj"); got != s.exp {
			t.Fatalf("[spec %d] expected HasExtension(%q) to be %t; got %t", index, s.location, s.exp, got)
		}
	}
}

func TestStreamResource(t *testing.T) {
	res := NewResourceFromStream("scenes/garage.obj", strings.NewReader("payload"))
	defer res.Close()

	if res.Name() != "garage.obj" || res.IsRemote() {
		t.Fatalf("expected local resource named garage.obj; got %s (remote: %t)", res.Name(), res.IsRemote())
	}
}
