package asset

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// A Resource is an open model or material library stream. Local files and
// http(s) URLs are supported.
type Resource struct {
	io.ReadCloser
	location *url.URL
}

// Returns the location of this resource.
func (r *Resource) Path() string {
	return r.location.String()
}

// Returns the file name of this resource without any directories.
func (r *Resource) Name() string {
	if r.IsRemote() {
		return path.Base(r.location.Path)
	}
	return filepath.Base(r.location.Path)
}

// Returns true if the Resource is streamed over http/https.
func (r *Resource) IsRemote() bool {
	return r.location.Scheme == "http" || r.location.Scheme == "https"
}

// Resolve the location of a resource. Locations without a scheme are treated
// as relative to relTo when relTo is not nil; mtllib and call directives use
// this to find files next to the model that references them.
func Resolve(location string, relTo *Resource) (*url.URL, error) {
	target, err := url.Parse(filepath.ToSlash(location))
	if err != nil {
		return nil, fmt.Errorf("resource: invalid location %q: %w", location, err)
	}

	if target.Scheme == "file" {
		target = &url.URL{Path: target.Path}
	}

	if target.Scheme != "" || relTo == nil || filepath.IsAbs(target.Path) {
		return target, nil
	}

	base := *relTo.location
	if base.Scheme == "" {
		dir, err := filepath.Abs(filepath.Dir(base.Path))
		if err != nil {
			return nil, fmt.Errorf("resource: could not detect abs path for %s: %w", base.Path, err)
		}
		return &url.URL{Path: filepath.Join(dir, target.Path)}, nil
	}

	base.Path = path.Join(path.Dir(base.Path), target.Path)
	return &base, nil
}

// Open a resource stream. The caller must close the returned resource.
func NewResource(location string, relTo *Resource) (*Resource, error) {
	target, err := Resolve(location, relTo)
	if err != nil {
		return nil, err
	}

	var reader io.ReadCloser
	switch target.Scheme {
	case "":
		reader, err = os.Open(filepath.Clean(target.Path))
		if err != nil {
			return nil, fmt.Errorf("resource: %w", err)
		}
	case "http", "https":
		resp, err := http.Get(target.String())
		if err != nil {
			return nil, fmt.Errorf("resource: could not fetch '%s': %s", target.String(), err)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("resource: could not fetch '%s': status %d", target.String(), resp.StatusCode)
		}
		reader = resp.Body
	default:
		return nil, fmt.Errorf("resource: unsupported scheme '%s'", target.Scheme)
	}

	return &Resource{
		ReadCloser: reader,
		location:   target,
	}, nil
}

// Create a resource from an in-memory stream. Resources relative to it are
// resolved against name.
func NewResourceFromStream(name string, source io.Reader) *Resource {
	location, err := url.Parse(filepath.ToSlash(name))
	if err != nil {
		location = &url.URL{Path: name}
	}
	return &Resource{
		ReadCloser: io.NopCloser(source),
		location:   location,
	}
}

// Returns true if the location ends with one of the given extensions.
func HasExtension(location string, exts ...string) bool {
	ext := strings.ToLower(path.Ext(location))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
