// Package scenario describes a set of interpreters and the worker threads
// that run in them, and plays it against a runtime.
//
// A scenario file looks like:
//
//	name: demo
//	main: sys.xxx = {'abc'}
//	interpreters:
//	  - name: s1
//	    setup: counter = 0
//	template: print("{{label}}: " .. sys.name)
//	workers:
//	  - label: t1(s1)
//	    interpreter: s1
//	  - label: t2(main)
//	    interpreter: main
//
// Workers without code run the template with {{label}} replaced by their
// label. The interpreter name "main" refers to the main interpreter.
package scenario

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MainInterpreter is the name workers use to run in the main interpreter.
const MainInterpreter = "main"

const labelPlaceholder = "{{label}}"

//go:embed default.yaml
var defaultYAML []byte

var (
	ErrUnknownInterpreter = errors.New("unknown interpreter")
	ErrDuplicateName      = errors.New("duplicate name")
	ErrEmptyName          = errors.New("empty name")
	ErrNoCode             = errors.New("worker has no code and scenario has no template")
)

type Interpreter struct {
	Name  string `yaml:"name"`
	Setup string `yaml:"setup,omitempty"`
}

type Worker struct {
	Label       string `yaml:"label"`
	Interpreter string `yaml:"interpreter"`
	Code        string `yaml:"code,omitempty"`
}

type Scenario struct {
	Name         string        `yaml:"name"`
	Main         string        `yaml:"main,omitempty"`
	Interpreters []Interpreter `yaml:"interpreters,omitempty"`
	Template     string        `yaml:"template,omitempty"`
	Workers      []Worker      `yaml:"workers,omitempty"`
}

// Default returns the built-in demonstration: two sub-interpreters, the
// main interpreter setting sys.xxx, and four workers of which only the one
// in the main interpreter sees it.
func Default() *Scenario {
	sc, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("scenario: embedded default is invalid: %v", err))
	}
	return sc
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes and validates a scenario. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks names and references.
func (sc *Scenario) Validate() error {
	var errs []error

	known := map[string]bool{MainInterpreter: true}
	for i, in := range sc.Interpreters {
		switch {
		case in.Name == "":
			errs = append(errs, fmt.Errorf("interpreter %d: %w", i, ErrEmptyName))
		case known[in.Name]:
			errs = append(errs, fmt.Errorf("interpreter %q: %w", in.Name, ErrDuplicateName))
		default:
			known[in.Name] = true
		}
	}

	labels := make(map[string]bool)
	for i, w := range sc.Workers {
		switch {
		case w.Label == "":
			errs = append(errs, fmt.Errorf("worker %d: %w", i, ErrEmptyName))
		case labels[w.Label]:
			errs = append(errs, fmt.Errorf("worker %q: %w", w.Label, ErrDuplicateName))
		default:
			labels[w.Label] = true
		}
		if !known[w.Interpreter] {
			errs = append(errs, fmt.Errorf("worker %q: %w %q", w.Label, ErrUnknownInterpreter, w.Interpreter))
		}
		if w.Code == "" && sc.Template == "" {
			errs = append(errs, fmt.Errorf("worker %q: %w", w.Label, ErrNoCode))
		}
	}
	return errors.Join(errs...)
}

// Code returns the code w runs.
func (sc *Scenario) Code(w Worker) string {
	code := w.Code
	if code == "" {
		code = sc.Template
	}
	return strings.ReplaceAll(code, labelPlaceholder, w.Label)
}
