package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kudwa-ai/kudwa-engine/pkg/apperrors"
)

func TestDecodePayload_Class(t *testing.T) {
	raw := json.RawMessage(`{
		"class_id": "company",
		"label": " Company ",
		"class_type": "entity",
		"properties": {"revenue": {"type": "currency", "required": true}}
	}`)

	payload, err := DecodePayload(ProposalTypeOntologyClass, ProposalActionUpsert, raw)
	require.NoError(t, err)

	class, ok := payload.(*ClassPayload)
	require.True(t, ok)
	assert.Equal(t, "company", class.ClassID)
	assert.Equal(t, "Company", class.Label)
	assert.Empty(t, class.Domain, "the domain defaults when the class is created")
	assert.Equal(t, PropertyTypeCurrency, class.Properties["revenue"].Type)
	assert.True(t, class.Properties["revenue"].Required)
	assert.Nil(t, class.DocumentID())
}

func TestDecodePayload_Entity(t *testing.T) {
	docID := uuid.New()
	raw := json.RawMessage(`{"name": "Acme Corp", "class_id": "company", "source_document_id": "` + docID.String() + `"}`)

	payload, err := DecodePayload(ProposalTypeEntity, ProposalActionUpsert, raw)
	require.NoError(t, err)

	entity := payload.(*EntityPayload)
	assert.Equal(t, "Acme Corp", entity.Name)
	assert.NotNil(t, entity.Properties)
	require.NotNil(t, entity.DocumentID())
	assert.Equal(t, docID, *entity.DocumentID())
}

func TestDecodePayload_InstanceAcceptsNumericKey(t *testing.T) {
	raw := json.RawMessage(`{"entity": {"name": "Revenue"}, "key": 2024, "properties": {"value": 1200.5}}`)

	payload, err := DecodePayload(ProposalTypeInstance, ProposalActionUpsert, raw)
	require.NoError(t, err)
	assert.Equal(t, ObservationKey("2024"), payload.(*InstancePayload).Key)
}

func TestDecodePayload_Errors(t *testing.T) {
	id := uuid.New().String()
	tests := []struct {
		name    string
		typ     ProposalType
		action  ProposalAction
		payload string
	}{
		{"unknown type", ProposalType("observation"), ProposalActionUpsert, `{}`},
		{"empty payload", ProposalTypeEntity, ProposalActionUpsert, ``},
		{"not an object", ProposalTypeEntity, ProposalActionUpsert, `["Acme"]`},
		{"unknown field", ProposalTypeEntity, ProposalActionUpsert, `{"name": "Acme", "colour": "red"}`},
		{"trailing data", ProposalTypeEntity, ProposalActionUpsert, `{"name": "Acme"} {"name": "Other"}`},
		{"entity without name", ProposalTypeEntity, ProposalActionUpsert, `{"class_id": "company"}`},
		{"entity blank name", ProposalTypeEntity, ProposalActionUpsert, `{"name": "   "}`},
		{"entity bad class slug", ProposalTypeEntity, ProposalActionUpsert, `{"name": "Acme", "class_id": "Company Inc"}`},
		{"class bad slug", ProposalTypeOntologyClass, ProposalActionUpsert, `{"class_id": "9lives", "label": "x", "class_type": "entity"}`},
		{"class missing label", ProposalTypeOntologyClass, ProposalActionUpsert, `{"class_id": "company", "class_type": "entity"}`},
		{"class bad type", ProposalTypeOntologyClass, ProposalActionUpsert, `{"class_id": "company", "label": "Company", "class_type": "thing"}`},
		{"class bad property type", ProposalTypeOntologyClass, ProposalActionUpsert, `{"class_id": "company", "label": "Company", "class_type": "entity", "properties": {"x": {"type": "money"}}}`},
		{"class bad property name", ProposalTypeOntologyClass, ProposalActionUpsert, `{"class_id": "company", "label": "Company", "class_type": "entity", "properties": {"a b": {"type": "string"}}}`},
		{"class delete", ProposalTypeOntologyClass, ProposalActionDelete, `{"class_id": "company", "label": "Company", "class_type": "entity"}`},
		{"property empty", ProposalTypeProperty, ProposalActionUpsert, `{"class_id": "company", "properties": {}}`},
		{"property delete", ProposalTypeProperty, ProposalActionDelete, `{"class_id": "company", "properties": {"x": {"type": "string"}}}`},
		{"relation missing target", ProposalTypeRelation, ProposalActionUpsert, `{"source": {"name": "A"}, "target": {}, "rel_type": "owns"}`},
		{"relation self loop by name", ProposalTypeRelation, ProposalActionUpsert, `{"source": {"name": "Acme"}, "target": {"name": "acme"}, "rel_type": "owns"}`},
		{"relation self loop by id", ProposalTypeRelation, ProposalActionUpsert, `{"source": {"id": "` + id + `"}, "target": {"id": "` + id + `"}, "rel_type": "owns"}`},
		{"relation id and name", ProposalTypeRelation, ProposalActionUpsert, `{"source": {"id": "` + id + `", "name": "A"}, "target": {"name": "B"}, "rel_type": "owns"}`},
		{"relation bad rel_type", ProposalTypeRelation, ProposalActionUpsert, `{"source": {"name": "A"}, "target": {"name": "B"}, "rel_type": "Owns It"}`},
		{"instance missing key", ProposalTypeInstance, ProposalActionUpsert, `{"entity": {"name": "Revenue"}}`},
		{"instance null key", ProposalTypeInstance, ProposalActionUpsert, `{"entity": {"name": "Revenue"}, "key": null}`},
		{"instance object key", ProposalTypeInstance, ProposalActionUpsert, `{"entity": {"name": "Revenue"}, "key": {"year": 2024}}`},
		{"unknown action", ProposalTypeEntity, ProposalAction("merge"), `{"name": "Acme"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload(tt.typ, tt.action, json.RawMessage(tt.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}

func TestDecodePayload_DeleteActions(t *testing.T) {
	_, err := DecodePayload(ProposalTypeEntity, ProposalActionDelete, json.RawMessage(`{"name": "Acme", "class_id": "company"}`))
	assert.NoError(t, err)

	_, err = DecodePayload(ProposalTypeRelation, ProposalActionDelete, json.RawMessage(`{"source": {"name": "A"}, "target": {"name": "B"}, "rel_type": "owns"}`))
	assert.NoError(t, err)

	_, err = DecodePayload(ProposalTypeInstance, ProposalActionDelete, json.RawMessage(`{"entity": {"name": "Revenue"}, "key": "2024-01"}`))
	assert.NoError(t, err)
}

func TestEntityRef_String(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, id.String(), EntityRef{ID: &id}.String())
	assert.Equal(t, "Acme (company)", EntityRef{Name: "Acme", ClassID: "company"}.String())
	assert.Equal(t, "Acme", EntityRef{Name: "Acme"}.String())
}
