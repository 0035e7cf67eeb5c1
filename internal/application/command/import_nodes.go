package command

import (
	"bytes"
	"context"
	"encoding/json"
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
// IMPORT NODES COMMAND
// Loads classified content nodes from a JSON or YAML document, resolves each
// node's constellation by name within its core and stores it with an unlock
// threshold derived from its difficulty.
// ══════════════════════════════════════════════════════════════════════════════

// ImportFormat is the encoding of an import document.
type ImportFormat string

const (
	FormatJSON ImportFormat = "json"
	FormatYAML ImportFormat = "yaml"
)

// FormatForPath picks a format from a file name. Anything that is not
// .yaml or .yml is read as JSON.
func FormatForPath(path string) ImportFormat {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return FormatYAML
	}
	return FormatJSON
}

// Classification describes where a node belongs.
type Classification struct {
	CoreNode          string   `json:"core_node" yaml:"core_node"`
	FamilyName        string   `json:"family_name" yaml:"family_name"`
	ConstellationName string   `json:"constellation_name" yaml:"constellation_name"`
	DifficultyLevel   int      `json:"difficulty_level" yaml:"difficulty_level"`
	DifficultyName    string   `json:"difficulty_name" yaml:"difficulty_name"`
	SelectedSkills    []string `json:"selected_skills" yaml:"selected_skills"`
}

// AnalysisDetails carries the node's display fields.
type AnalysisDetails struct {
	Title string `json:"title" yaml:"title"`
	Link  string `json:"link" yaml:"link"`
}

// ImportRecord is one entry of an import document.
type ImportRecord struct {
	Classification  Classification  `json:"classification" yaml:"classification"`
	AnalysisDetails AnalysisDetails `json:"analysis_details" yaml:"analysis_details"`
}

// ParseImport decodes a document holding either one record or an array of
// records.
func ParseImport(r io.Reader, format ImportFormat) ([]ImportRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, shared.NewDomainError("import", "Parse", shared.ErrEmptyValue, "import document is empty")
	}

	var records []ImportRecord
	switch format {
	case FormatYAML:
		var node yaml.Node
		if err := yaml.Unmarshal(trimmed, &node); err != nil {
			return nil, shared.WrapError("import", "Parse", shared.ErrInvalidFormat, "decode yaml", err)
		}
		root := &node
		if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
			root = root.Content[0]
		}
		if root.Kind == yaml.SequenceNode {
			err = root.Decode(&records)
		} else {
			var one ImportRecord
			err = root.Decode(&one)
			records = []ImportRecord{one}
		}
		if err != nil {
			return nil, shared.WrapError("import", "Parse", shared.ErrInvalidFormat, "decode yaml", err)
		}
	case FormatJSON, "":
		if trimmed[0] == '[' {
			err = json.Unmarshal(trimmed, &records)
		} else {
			var one ImportRecord
			err = json.Unmarshal(trimmed, &one)
			records = []ImportRecord{one}
		}
		if err != nil {
			return nil, shared.WrapError("import", "Parse", shared.ErrInvalidFormat, "decode json", err)
		}
	default:
		return nil, shared.NewDomainError("import", "Parse", shared.ErrInvalidInput, "unknown format "+string(format))
	}
	return records, nil
}

// ImportNodesCommand contains the records to import.
type ImportNodesCommand struct {
	Records []ImportRecord

	// Source names the document in logs and events.
	Source string

	// DryRun resolves and reports every record without inserting.
	DryRun bool

	// ConstellationAliases renames constellations before lookup.
	ConstellationAliases map[string]string

	// Reward is stored as each node's xp_reward. Zero means
	// hierarchy.DefaultReward.
	Reward int64
}

// ImportOutcome reports what happened to one record.
type ImportOutcome struct {
	Index         int             `json:"index"`
	Title         string          `json:"title"`
	Core          visibility.Core `json:"core"`
	Family        string          `json:"family"`
	Constellation string          `json:"constellation"`
	Difficulty    int             `json:"difficulty"`
	XPThreshold   int64           `json:"xp_threshold"`
	NodeID        string          `json:"node_id,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// ImportNodesResult summarizes an import.
type ImportNodesResult struct {
	Inserted int             `json:"inserted"`
	Failed   int             `json:"failed"`
	DryRun   bool            `json:"dry_run"`
	Outcomes []ImportOutcome `json:"outcomes"`
}

// ImportNodesHandler handles ImportNodesCommand.
type ImportNodesHandler struct {
	classifier *visibility.Classifier
	writer     hierarchy.ContentWriter
	trees      hierarchy.TreeCache
	publisher  shared.EventPublisher
	log        *logger.Logger
}

// NewImportNodesHandler creates the handler. trees and publisher may be nil.
func NewImportNodesHandler(
	classifier *visibility.Classifier,
	writer hierarchy.ContentWriter,
	trees hierarchy.TreeCache,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *ImportNodesHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ImportNodesHandler{
		classifier: classifier,
		writer:     writer,
		trees:      trees,
		publisher:  publisher,
		log:        log.With(logger.Component("import_nodes")),
	}
}

// Handle imports every record in order. A record that fails is reported in
// its outcome and does not stop the import; only context cancellation does.
func (h *ImportNodesHandler) Handle(ctx context.Context, cmd ImportNodesCommand) (*ImportNodesResult, error) {
	reward := cmd.Reward
	if reward <= 0 {
		reward = hierarchy.DefaultReward
	}

	result := &ImportNodesResult{
		DryRun:   cmd.DryRun,
		Outcomes: make([]ImportOutcome, 0, len(cmd.Records)),
	}
	touched := make(map[visibility.Core]struct{})

	for i, rec := range cmd.Records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		out, node, err := h.resolve(i, rec, cmd.ConstellationAliases)
		if err == nil && !cmd.DryRun {
			out.NodeID, err = h.insert(ctx, out, node, reward)
		}
		if err != nil {
			out.Error = err.Error()
			result.Failed++
			h.log.Warn("node not imported",
				logger.Int("index", i),
				logger.String("title", out.Title),
				logger.Err(err),
			)
		} else if !cmd.DryRun {
			result.Inserted++
			touched[out.Core] = struct{}{}
		}
		result.Outcomes = append(result.Outcomes, out)
	}

	for core := range touched {
		if h.trees == nil {
			break
		}
		if err := h.trees.Invalidate(ctx, core); err != nil {
			h.log.Warn("tree cache invalidation failed", logger.Core(string(core)), logger.Err(err))
		}
	}

	if !cmd.DryRun && h.publisher != nil {
		if err := h.publisher.Publish(shared.NewNodesImportedEvent(cmd.Source, result.Inserted, result.Failed)); err != nil {
			h.log.Warn("event publish failed", logger.Err(err))
		}
	}

	h.log.Info("import finished",
		logger.String("source", cmd.Source),
		logger.Int("inserted", result.Inserted),
		logger.Int("failed", result.Failed),
		logger.Bool("dry_run", cmd.DryRun),
	)
	return result, nil
}

// resolve validates a record and derives its core and unlock threshold.
func (h *ImportNodesHandler) resolve(i int, rec ImportRecord, aliases map[string]string) (ImportOutcome, hierarchy.NewNode, error) {
	c := rec.Classification
	out := ImportOutcome{
		Index:         i,
		Title:         strings.TrimSpace(rec.AnalysisDetails.Title),
		Family:        strings.TrimSpace(c.FamilyName),
		Constellation: strings.TrimSpace(c.ConstellationName),
		Difficulty:    c.DifficultyLevel,
	}
	if alias, ok := aliases[out.Constellation]; ok {
		out.Constellation = alias
	}

	switch {
	case out.Title == "":
		return out, hierarchy.NewNode{}, shared.NewDomainError("import", "Resolve", shared.ErrEmptyValue, "title is required")
	case out.Constellation == "":
		return out, hierarchy.NewNode{}, shared.NewDomainError("import", "Resolve", shared.ErrEmptyValue, "constellation_name is required")
	case c.DifficultyLevel < visibility.MinDifficulty || c.DifficultyLevel > visibility.MaxDifficulty:
		return out, hierarchy.NewNode{}, shared.NewDomainError("import", "Resolve", shared.ErrValueOutOfRange,
			fmt.Sprintf("difficulty %d outside %d-%d", c.DifficultyLevel, visibility.MinDifficulty, visibility.MaxDifficulty))
	}

	core, known := h.classifier.ParseCore(c.CoreNode)
	thresholdCore := core
	if !known {
		core = visibility.Core(strings.TrimSpace(c.CoreNode))
		thresholdCore = h.classifier.HighestCore()
	}
	out.Core = core
	out.XPThreshold, _ = h.classifier.UnlockThreshold(thresholdCore, c.DifficultyLevel)

	return out, hierarchy.NewNode{
		Title:           out.Title,
		Link:            strings.TrimSpace(rec.AnalysisDetails.Link),
		Core:            core,
		Difficulty:      c.DifficultyLevel,
		DifficultyLabel: c.DifficultyName,
		XPThreshold:     out.XPThreshold,
		Skills:          c.SelectedSkills,
	}, nil
}

func (h *ImportNodesHandler) insert(ctx context.Context, out ImportOutcome, node hierarchy.NewNode, reward int64) (string, error) {
	constellation, err := h.writer.FindConstellation(ctx, out.Constellation, out.Core)
	if err != nil {
		return "", fmt.Errorf("constellation %q in %s: %w", out.Constellation, out.Core, err)
	}
	node.ConstellationID = constellation.ID
	node.XPReward = reward
	return h.writer.InsertNode(ctx, node)
}
