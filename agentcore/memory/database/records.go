package database

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/ZanzyTHEbar/agentcore/agentcore/capability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ModelRecord is a row of the models table. Nil generation parameters mean
// the provider default applies.
type ModelRecord struct {
	ID               string
	DisplayName      string
	Provider         string
	Model            string
	APIKey           string
	BaseURL          string
	Enabled          bool
	Description      string
	MaxTokens        *int
	Temperature      *float64
	TopP             *float64
	TopK             *int
	FrequencyPenalty *float64
	PresencePenalty  *float64
	TimeoutSeconds   *int
	Position         int
}

// ToolRecord is a row of the plugin_tools table.
type ToolRecord struct {
	ID           string
	Name         string
	Purpose      string
	Version      string
	CallMethod   string
	Parameters   []capability.Parameter
	UserSettings map[string]any
}

// Capability converts the record into a tool descriptor.
func (r ToolRecord) Capability() (capability.ToolCapability, error) {
	method, url, err := capability.ParseCallMethod(r.CallMethod)
	if err != nil {
		return capability.ToolCapability{}, fmt.Errorf("tool %s: %w", r.ID, err)
	}
	return capability.ToolCapability{
		ID:          r.ID,
		Name:        r.Name,
		Purpose:     r.Purpose,
		Version:     r.Version,
		Method:      method,
		URLTemplate: url,
		Parameters:  r.Parameters,
		Settings:    capability.SettingsFromMap(r.UserSettings),
	}, nil
}

// ToolRecordFromCapability is the inverse used by the OpenAPI import.
func ToolRecordFromCapability(t capability.ToolCapability) ToolRecord {
	return ToolRecord{
		ID:         t.ID,
		Name:       t.Name,
		Purpose:    t.Purpose,
		Version:    t.Version,
		CallMethod: t.CallMethod(),
		Parameters: t.Parameters,
	}
}

// KnowledgeBaseRecord is a row of the knowledge_bases table.
type KnowledgeBaseRecord struct {
	ID          string
	Name        string
	Collection  string
	Metric      string
	Description string
}

// Capability converts the record into a knowledge-base descriptor.
func (r KnowledgeBaseRecord) Capability() capability.KnowledgeBase {
	return capability.KnowledgeBase{
		ID:         r.ID,
		Name:       r.Name,
		Collection: r.Collection,
		Metric:     r.Metric,
	}
}
