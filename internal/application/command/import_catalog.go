package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alem-hub/stellar-map/internal/domain/hierarchy"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/internal/domain/visibility"
	"github.com/alem-hub/stellar-map/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT CATALOG COMMAND
// Creates the families and constellations nodes are imported into.
// Entries that already exist (same name in the same core) are kept as is.
// ══════════════════════════════════════════════════════════════════════════════

// CatalogConstellation is a constellation entry of a catalog document.
type CatalogConstellation struct {
	Name         string `yaml:"name" json:"name"`
	DisplayOrder int    `yaml:"display_order" json:"display_order"`
	Color        string `yaml:"color" json:"color,omitempty"`
}

// CatalogFamily is a family entry with its constellations.
type CatalogFamily struct {
	Name           string                 `yaml:"name" json:"name"`
	Core           string                 `yaml:"core" json:"core"`
	DisplayOrder   int                    `yaml:"display_order" json:"display_order"`
	Constellations []CatalogConstellation `yaml:"constellations" json:"constellations"`
}

// Catalog is the document read by ImportCatalogHandler.
type Catalog struct {
	Families []CatalogFamily `yaml:"families" json:"families"`
}

// ParseCatalog decodes a YAML catalog. JSON is valid YAML and is accepted too.
func ParseCatalog(r io.Reader) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return c, shared.NewDomainError("catalog", "Parse", shared.ErrEmptyValue, "catalog is empty")
		}
		return c, shared.WrapError("catalog", "Parse", shared.ErrInvalidFormat, "decode catalog", err)
	}
	return c, nil
}

// ImportCatalogCommand contains a parsed catalog.
type ImportCatalogCommand struct {
	Catalog Catalog
}

// ImportCatalogResult counts created and existing entries.
type ImportCatalogResult struct {
	FamiliesCreated        int `json:"families_created"`
	FamiliesExisting       int `json:"families_existing"`
	ConstellationsCreated  int `json:"constellations_created"`
	ConstellationsExisting int `json:"constellations_existing"`
}

// ImportCatalogHandler handles ImportCatalogCommand.
type ImportCatalogHandler struct {
	classifier *visibility.Classifier
	reader     hierarchy.ContentStore
	writer     hierarchy.CatalogWriter
	trees      hierarchy.TreeCache
	log        *logger.Logger
}

// NewImportCatalogHandler creates the handler. trees may be nil.
func NewImportCatalogHandler(
	classifier *visibility.Classifier,
	reader hierarchy.ContentStore,
	writer hierarchy.CatalogWriter,
	trees hierarchy.TreeCache,
	log *logger.Logger,
) *ImportCatalogHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ImportCatalogHandler{
		classifier: classifier,
		reader:     reader,
		writer:     writer,
		trees:      trees,
		log:        log.With(logger.Component("import_catalog")),
	}
}

func catalogKey(name string, core visibility.Core) string {
	return string(core) + "/" + name
}

// Handle creates missing families and constellations. Family cores must be
// known to the classifier.
func (h *ImportCatalogHandler) Handle(ctx context.Context, cmd ImportCatalogCommand) (*ImportCatalogResult, error) {
	families, err := h.reader.ListFamilies(ctx)
	if err != nil {
		return nil, shared.WrapError("catalog", "Import", shared.ErrExternalService, "list families", err)
	}
	constellations, err := h.reader.ListConstellations(ctx)
	if err != nil {
		return nil, shared.WrapError("catalog", "Import", shared.ErrExternalService, "list constellations", err)
	}

	familyIDs := make(map[string]string, len(families))
	for _, f := range families {
		familyIDs[catalogKey(f.Name, f.Core)] = f.ID
	}
	existing := make(map[string]struct{}, len(constellations))
	for _, c := range constellations {
		existing[catalogKey(c.Name, c.Core)] = struct{}{}
	}

	result := &ImportCatalogResult{}
	for _, cf := range cmd.Catalog.Families {
		name := strings.TrimSpace(cf.Name)
		core, ok := h.classifier.ParseCore(cf.Core)
		if name == "" || !ok {
			return result, shared.NewDomainError("catalog", "Import", shared.ErrInvalidInput,
				fmt.Sprintf("family %q needs a name and a known core (got %q)", cf.Name, cf.Core))
		}

		key := catalogKey(name, core)
		familyID, found := familyIDs[key]
		if found {
			result.FamiliesExisting++
		} else {
			familyID, err = h.writer.CreateFamily(ctx, hierarchy.Family{Name: name, Core: core, DisplayOrder: cf.DisplayOrder})
			if err != nil {
				return result, fmt.Errorf("create family %q: %w", name, err)
			}
			familyIDs[key] = familyID
			result.FamiliesCreated++
		}

		for _, cc := range cf.Constellations {
			cname := strings.TrimSpace(cc.Name)
			if cname == "" {
				return result, shared.NewDomainError("catalog", "Import", shared.ErrEmptyValue,
					fmt.Sprintf("family %q has a constellation without a name", name))
			}
			ckey := catalogKey(cname, core)
			if _, ok := existing[ckey]; ok {
				result.ConstellationsExisting++
				continue
			}
			if _, err := h.writer.CreateConstellation(ctx, hierarchy.Constellation{
				Name: cname, FamilyID: familyID, Core: core, DisplayOrder: cc.DisplayOrder, Color: cc.Color,
			}); err != nil {
				return result, fmt.Errorf("create constellation %q: %w", cname, err)
			}
			existing[ckey] = struct{}{}
			result.ConstellationsCreated++
		}
	}

	if h.trees != nil && result.FamiliesCreated+result.ConstellationsCreated > 0 {
		if err := h.trees.Invalidate(ctx, ""); err != nil {
			h.log.Warn("tree cache invalidation failed", logger.Err(err))
		}
	}

	h.log.Info("catalog imported",
		logger.Int("families_created", result.FamiliesCreated),
		logger.Int("constellations_created", result.ConstellationsCreated),
	)
	return result, nil
}
