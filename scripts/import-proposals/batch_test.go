package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

func TestParseBatch_YAML(t *testing.T) {
	data := []byte(`
created_by: pipeline@kudwa.test
proposals:
  - type: ontology_class
    payload:
      class_id: metric
      label: Metric
      class_type: entity
  - type: instance
    created_by: analyst@kudwa.test
    payload:
      entity: {name: Revenue, class_id: metric}
      key: 2024
      properties: {value: 1200.5}
`)

	requests, err := parseBatch("q3.yaml", data, "import-proposals")
	require.NoError(t, err)
	require.Len(t, requests, 2)

	assert.Equal(t, models.ProposalTypeOntologyClass, requests[0].Type)
	assert.Equal(t, "pipeline@kudwa.test", requests[0].CreatedBy)
	assert.Equal(t, models.SourceInference, requests[0].Source)
	assert.JSONEq(t, `{"class_id":"metric","label":"Metric","class_type":"entity"}`, string(requests[0].Payload))

	assert.Equal(t, "analyst@kudwa.test", requests[1].CreatedBy)
	assert.JSONEq(t, `{"entity":{"name":"Revenue","class_id":"metric"},"key":2024,"properties":{"value":1200.5}}`, string(requests[1].Payload))

	payload, err := models.DecodePayload(requests[1].Type, models.ProposalActionUpsert, requests[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, models.ObservationKey("2024"), payload.(*models.InstancePayload).Key)
}

func TestParseBatch_JSON(t *testing.T) {
	data := []byte(`{"source": "manual", "proposals": [{"type": "entity", "action": "delete", "payload": {"name": "Acme"}}]}`)

	requests, err := parseBatch("batch.JSON", data, "cli")
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, models.SourceManual, requests[0].Source)
	assert.Equal(t, models.ProposalActionDelete, requests[0].Action)
	assert.Equal(t, "cli", requests[0].CreatedBy)
}

func TestParseBatch_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"bad yaml", "a.yaml", "proposals: [\n"},
		{"bad json", "a.json", "{"},
		{"unknown source", "a.yaml", "source: crawler\nproposals: []\n"},
		{"missing payload", "a.yaml", "proposals:\n  - type: entity\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseBatch(tt.file, []byte(tt.data), "cli")
			assert.Error(t, err)
		})
	}
}
