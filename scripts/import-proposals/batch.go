package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

// batchFile is the on-disk format. YAML and JSON share the same shape:
//
//	created_by: pipeline@kudwa
//	source: inference
//	proposals:
//	  - type: ontology_class
//	    payload: {class_id: company, label: Company, class_type: entity}
//	  - type: instance
//	    payload: {entity: {name: Revenue, class_id: metric}, key: 2024}
type batchFile struct {
	CreatedBy string       `yaml:"created_by" json:"created_by"`
	Source    string       `yaml:"source" json:"source"`
	Proposals []batchEntry `yaml:"proposals" json:"proposals"`
}

type batchEntry struct {
	Type      string         `yaml:"type" json:"type"`
	Action    string         `yaml:"action" json:"action"`
	CreatedBy string         `yaml:"created_by" json:"created_by"`
	Payload   map[string]any `yaml:"payload" json:"payload"`
}

// parseBatch decodes a batch file into submit requests. JSON is used for
// .json files, YAML for everything else. Entries inherit created_by and
// source from the file header.
func parseBatch(name string, data []byte, defaultCreatedBy string) ([]*models.SubmitProposalRequest, error) {
	var batch batchFile
	if strings.EqualFold(filepath.Ext(name), ".json") {
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
	}

	source := models.SourceInference
	if batch.Source != "" {
		source = models.ProvenanceSource(batch.Source)
		if !source.IsValid() {
			return nil, fmt.Errorf("unknown source %q", batch.Source)
		}
	}
	fileCreatedBy := batch.CreatedBy
	if fileCreatedBy == "" {
		fileCreatedBy = defaultCreatedBy
	}

	requests := make([]*models.SubmitProposalRequest, 0, len(batch.Proposals))
	for i, entry := range batch.Proposals {
		if entry.Payload == nil {
			return nil, fmt.Errorf("proposal %d: payload is required", i+1)
		}
		payload, err := json.Marshal(entry.Payload)
		if err != nil {
			return nil, fmt.Errorf("proposal %d: payload is not JSON-compatible: %w", i+1, err)
		}
		createdBy := entry.CreatedBy
		if createdBy == "" {
			createdBy = fileCreatedBy
		}
		requests = append(requests, &models.SubmitProposalRequest{
			Type:      models.ProposalType(entry.Type),
			Action:    models.ProposalAction(entry.Action),
			Payload:   payload,
			CreatedBy: createdBy,
			Source:    source,
		})
	}
	return requests, nil
}
