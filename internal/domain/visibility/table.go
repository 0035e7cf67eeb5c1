package visibility

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alem-hub/stellar-map/internal/domain/shared"
)

// tableFile is the YAML layout of a threshold table:
//
//	cores:
//	  - name: Ignition
//	    thresholds: {fog: 0, lens: 3750, prism: 7500, beam: 11250}
type tableFile struct {
	Cores []struct {
		Name       string `yaml:"name"`
		Thresholds struct {
			Fog   *int64 `yaml:"fog"`
			Lens  *int64 `yaml:"lens"`
			Prism *int64 `yaml:"prism"`
			Beam  *int64 `yaml:"beam"`
		} `yaml:"thresholds"`
	} `yaml:"cores"`
}

// LoadTable decodes a YAML threshold table and builds a Classifier from it.
func LoadTable(r io.Reader) (*Classifier, error) {
	var doc tableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, shared.WrapError("visibility", "LoadTable", shared.ErrInvalidFormat,
			"decode threshold table", err)
	}

	table := make(map[Core]Thresholds, len(doc.Cores))
	for _, entry := range doc.Cores {
		core := Core(entry.Name)
		if _, dup := table[core]; dup {
			return nil, shared.WrapError("visibility", "LoadTable", shared.ErrInvalidInput,
				fmt.Sprintf("core %q listed twice", entry.Name), shared.ErrInvalidThresholdTable)
		}
		t := entry.Thresholds
		if t.Fog == nil || t.Lens == nil || t.Prism == nil || t.Beam == nil {
			return nil, shared.WrapError("visibility", "LoadTable", shared.ErrInvalidInput,
				fmt.Sprintf("core %q must define fog, lens, prism and beam", entry.Name), shared.ErrInvalidThresholdTable)
		}
		table[core] = Thresholds{*t.Fog, *t.Lens, *t.Prism, *t.Beam}
	}

	return NewClassifier(table)
}

// LoadTableFile reads a YAML threshold table from path.
// An empty path returns DefaultClassifier.
func LoadTableFile(path string) (*Classifier, error) {
	if path == "" {
		return DefaultClassifier(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open threshold table: %w", err)
	}
	defer f.Close()
	return LoadTable(f)
}
