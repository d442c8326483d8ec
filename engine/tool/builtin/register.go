// Package builtin bundles the reference tools the engine ships with.
package builtin

import (
	"github.com/roundslab/rounds/engine/tool"
	"github.com/roundslab/rounds/engine/tool/builtin/litsearch"
	"github.com/roundslab/rounds/engine/tool/builtin/medsafety"
	"github.com/roundslab/rounds/engine/tool/builtin/patientlookup"
)

// Config carries the knobs the bundled tools need.
type Config struct {
	// LiteratureBaseURL enables the literature search tool when set.
	LiteratureBaseURL string
}

// Register adds the bundled tools to the catalog. The literature tool is
// registered only when an endpoint is configured; the in-memory tools are
// always available.
func Register(catalog *tool.Catalog, cfg Config) error {
	defs := []*tool.Definition{
		patientlookup.Definition(),
		medsafety.Definition(),
	}
	if cfg.LiteratureBaseURL != "" {
		defs = append(defs, litsearch.New(cfg.LiteratureBaseURL))
	}
	for _, def := range defs {
		if err := catalog.Register(def); err != nil {
			return err
		}
	}
	return nil
}
