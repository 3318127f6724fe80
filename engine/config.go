package engine

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dawtools/dawproject/container"
	"github.com/dawtools/dawproject/dom"
)

// RetentionMode is the YAML-friendly spelling of the resource retention
// policy: "retain" keeps unreferenced entries, "drop" discards them.
type RetentionMode string

const (
	Retain RetentionMode = "retain"
	Drop   RetentionMode = "drop"
)

func (m RetentionMode) mode() dom.Retention {
	if m == Drop {
		return dom.DropUnreferenced
	}
	return dom.RetainAll
}

// Options configures an Engine. The zero value is usable: default limits,
// lenient referential checks, unreferenced resources retained.
type Options struct {
	Limits     container.Limits `yaml:"limits"`
	Strict     bool             `yaml:"strict"`
	Retention  RetentionMode    `yaml:"retention"`
	InlineMIDI bool             `yaml:"inline_midi"`
	EncodeMIDI bool             `yaml:"encode_midi"`
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{Limits: container.DefaultLimits(), Retention: Retain}
}

// ReadOptions loads an options file. Unknown fields are rejected so typos
// in hand-written configs surface instead of silently defaulting.
func ReadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	opts := DefaultOptions()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil {
		return Options{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if opts.Retention != Retain && opts.Retention != Drop {
		return Options{}, fmt.Errorf("parsing %s: retention must be %q or %q", path, Retain, Drop)
	}
	return opts, nil
}
