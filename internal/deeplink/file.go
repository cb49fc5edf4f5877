package deeplink

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the on-disk route table.
//
//	fallback: /alerts
//	replace_defaults: false
//	routes:
//	  bunkering: /bunkering
//	  incident: /safety/incidents
type File struct {
	Fallback        string            `yaml:"fallback"`
	ReplaceDefaults bool              `yaml:"replace_defaults"`
	Routes          map[string]string `yaml:"routes"`
}

// LoadFile reads a route table from a YAML file. Unless replace_defaults is
// set, its routes are merged over DefaultRoutes.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse route file: %w", err)
	}
	for k, p := range f.Routes {
		if len(tokens(k)) == 0 {
			return nil, fmt.Errorf("route file: key %q has no letters or digits", k)
		}
		if p == "" || p[0] != '/' {
			return nil, fmt.Errorf("route file: route for %q must be an absolute path, got %q", k, p)
		}
	}
	if f.Fallback != "" && f.Fallback[0] != '/' {
		return nil, fmt.Errorf("route file: fallback must be an absolute path, got %q", f.Fallback)
	}
	return &f, nil
}

// Table returns the effective module → route table.
func (f *File) Table() map[string]string {
	out := make(map[string]string)
	if !f.ReplaceDefaults {
		for k, p := range DefaultRoutes() {
			out[k] = p
		}
	}
	for k, p := range f.Routes {
		// normalized so "Incidents" in the file overrides the built-in "incident"
		out[strings.Join(tokens(k), "_")] = p
	}
	return out
}

// Resolver builds a Resolver from the file.
func (f *File) Resolver(opts ...Option) *Resolver {
	return New(f.Table(), append([]Option{WithFallback(f.Fallback)}, opts...)...)
}
