// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config implements reading of the srcwatch configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"sigs.k8s.io/yaml"
)

const CurrentVersion = 1

var ErrNoRootPath = errors.New("root without path")

type Configuration struct {
	Version int                  `json:"version"`
	Roots   []RootConfiguration  `json:"roots"`
	Options OptionsConfiguration `json:"options"`
}

// New returns a configuration with every option at its default value and
// no roots.
func New() Configuration {
	var cfg Configuration
	cfg.Version = CurrentVersion
	setDefaults(&cfg.Options)
	cfg.prepare()
	return cfg
}

func (cfg Configuration) Copy() Configuration {
	newCfg := cfg
	newCfg.Roots = make([]RootConfiguration, len(cfg.Roots))
	for i := range cfg.Roots {
		newCfg.Roots[i] = cfg.Roots[i].Copy()
	}
	newCfg.Options = cfg.Options.Copy()
	return newCfg
}

// Load reads and prepares the configuration file at path.
func Load(path string) (Configuration, error) {
	fd, err := os.Open(path)
	if err != nil {
		return Configuration{}, err
	}
	defer fd.Close()
	cfg, err := ReadYAML(fd)
	if err != nil {
		return Configuration{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ReadYAML decodes a configuration, filling unset options with defaults.
func ReadYAML(r io.Reader) (Configuration, error) {
	bs, err := io.ReadAll(r)
	if err != nil {
		return Configuration{}, err
	}

	var cfg Configuration
	setDefaults(&cfg.Options)
	if err := yaml.Unmarshal(bs, &cfg); err != nil {
		return Configuration{}, fmt.Errorf("decoding configuration: %w", err)
	}
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	for i, root := range cfg.Roots {
		if root.Path == "" {
			return Configuration{}, fmt.Errorf("roots[%d]: %w", i, ErrNoRootPath)
		}
	}

	cfg.prepare()
	return cfg, nil
}

func (cfg *Configuration) prepare() {
	if err := fillNilSlices(&cfg.Options); err != nil {
		panic("bug: fillNilSlices on options: " + err.Error())
	}
	cfg.Options.prepare()

	for i := range cfg.Roots {
		cfg.Roots[i].prepare()
	}
}

type defaultParser interface {
	ParseDefault(string) error
}

// setDefaults sets default values on a struct, based on the default
// annotation.
func setDefaults(data interface{}) {
	s := reflect.ValueOf(data).Elem()
	t := s.Type()

	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		tag := t.Field(i).Tag

		v := tag.Get("default")
		if len(v) == 0 {
			continue
		}

		if f.CanAddr() && f.Addr().CanInterface() {
			if parser, ok := f.Addr().Interface().(defaultParser); ok {
				if err := parser.ParseDefault(v); err != nil {
					panic(err)
				}
				continue
			}
		}

		switch f.Interface().(type) {
		case string:
			f.SetString(v)

		case int:
			i, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				panic(err)
			}
			f.SetInt(i)

		case float64:
			fl, err := strconv.ParseFloat(v, 64)
			if err != nil {
				panic(err)
			}
			f.SetFloat(fl)

		case bool:
			f.SetBool(v == "true")

		case []string:
			// Filled after decoding by fillNilSlices, as the decoder would
			// otherwise merge with the defaults.

		default:
			panic(f.Type())
		}
	}
}

// fillNilSlices sets default value on slices that are still nil.
func fillNilSlices(data interface{}) error {
	s := reflect.ValueOf(data).Elem()
	t := s.Type()

	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		tag := t.Field(i).Tag

		v := tag.Get("default")
		if len(v) > 0 {
			switch f.Interface().(type) {
			case []string:
				if f.IsNil() {
					// Treat the default as a comma separated slice
					vs := strings.Split(v, ",")
					for i := range vs {
						vs[i] = strings.TrimSpace(vs[i])
					}

					rv := reflect.MakeSlice(reflect.TypeOf([]string{}), len(vs), len(vs))
					for i, v := range vs {
						rv.Index(i).SetString(v)
					}
					f.Set(rv)
				}
			}
		}
	}
	return nil
}

// ExpandTilde replaces a leading ~ with the user's home directory.
func ExpandTilde(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
