// Package plan reads and writes rename plans: YAML files recording, per
// column group, which name to use. The CLI applies a plan to a session the
// same way a user picks names in the web page.
//
//	version: 1
//	groups:
//	  - key: customer_id
//	    use: Customer ID
//	  - key: amount
//	    custom: total
package plan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/JonMunkholm/fusion/internal/core"
	"github.com/JonMunkholm/fusion/internal/logging"
)

// Version is the plan format version written by Draft.
const Version = 1

// Plan is a list of naming choices keyed by group key.
type Plan struct {
	Version int     `yaml:"version"`
	Groups  []Entry `yaml:"groups"`
}

// Entry is the choice for one group. Use names the key or an existing raw
// column; Custom is free text and wins over Use. An entry with neither keeps
// the suggested key.
type Entry struct {
	Key     string   `yaml:"key"`
	Use     string   `yaml:"use,omitempty"`
	Custom  string   `yaml:"custom,omitempty"`
	Names   []string `yaml:"names,omitempty"`
	Samples []string `yaml:"samples,omitempty"`
}

// Option returns the resolver option this entry selects.
func (e Entry) Option() string {
	switch {
	case e.Custom != "":
		return core.CustomizeOption
	case e.Use != "":
		return e.Use
	default:
		return e.Key
	}
}

// Load reads a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a plan.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the version and that every key appears once.
func (p *Plan) Validate() error {
	var errs []error
	if p.Version != 0 && p.Version != Version {
		errs = append(errs, fmt.Errorf("unsupported plan version %d", p.Version))
	}
	seen := make(map[string]bool, len(p.Groups))
	for i, e := range p.Groups {
		switch {
		case e.Key == "":
			errs = append(errs, fmt.Errorf("groups[%d]: key is required", i))
		case seen[e.Key]:
			errs = append(errs, fmt.Errorf("groups[%d]: duplicate key %q", i, e.Key))
		}
		seen[e.Key] = true
	}
	return errors.Join(errs...)
}

// Draft builds a plan from the current choices of a reconciled view.
func Draft(view *core.View) *Plan {
	p := &Plan{Version: Version, Groups: make([]Entry, 0, len(view.Groups))}
	for _, g := range view.Groups {
		e := Entry{Key: g.Key, Names: g.Names, Samples: g.Samples}
		if g.Selected == core.CustomizeOption {
			e.Custom = g.Custom
		} else if g.Selected != g.Key {
			e.Use = g.Selected
		}
		p.Groups = append(p.Groups, e)
	}
	return p
}

// Write encodes p as YAML.
func Write(w io.Writer, p *Plan) error {
	data, err := yaml.MarshalWithOptions(p, yaml.Indent(2), yaml.IndentSequence(true))
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// Apply records every entry as a choice on s. Entries whose group does not
// exist are returned as skipped; an entry naming an invalid option is an
// error and stops the apply.
func Apply(ctx context.Context, p *Plan, s *core.Session) (skipped []string, err error) {
	logger := logging.FromContext(ctx)
	for _, e := range p.Groups {
		err := s.Choose(ctx, e.Key, e.Option(), e.Custom)
		switch {
		case errors.Is(err, core.ErrUnknownGroup):
			logger.Warn("plan entry skipped", "key", e.Key)
			skipped = append(skipped, e.Key)
		case err != nil:
			return skipped, fmt.Errorf("plan entry %q: %w", e.Key, err)
		}
	}
	return skipped, nil
}
