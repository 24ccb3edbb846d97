// Copyright (c) 2026, Mirrorscene Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package collab

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Options configures an [Engine]. The zero value is not usable; get one
// from [NewOptions] or [OpenOptions].
type Options struct {

	// Participant is this participant's session identity.
	// An empty value generates a fresh one on engine creation.
	Participant string `toml:"participant"`

	// ServerURL is the WebSocket URL of the session hub, used by [Dial].
	ServerURL string `toml:"server-url"`

	// ObjectLimits caps object creation per replica type on top of any
	// server-set limits; types not present are bounded only by the server.
	ObjectLimits map[string]int `toml:"object-limits"`

	// AutoTemplateRefresh controls whether out-of-date template instances
	// are re-materialized automatically at the end of each tick.
	AutoTemplateRefresh bool `toml:"auto-template-refresh"`
}

// NewOptions returns options with the default values.
func NewOptions() *Options {
	return &Options{AutoTemplateRefresh: true}
}

// OpenOptions reads options from the TOML file at the given path,
// on top of the defaults.
func OpenOptions(filename string) (*Options, error) {
	opts := NewOptions()
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(b, opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// SaveOptions writes the given options to the TOML file at the given path.
func SaveOptions(opts *Options, filename string) error {
	b, err := toml.Marshal(opts)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, b, 0o666)
}
