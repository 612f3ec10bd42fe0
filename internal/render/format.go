// Package render turns transcripts, tasks and the action catalog into terminal output.
package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harunnryd/kiki/internal/action"
	"github.com/harunnryd/kiki/internal/chat"

	"gopkg.in/yaml.v3"
)

type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

func ParseOutputFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	switch format {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (supported: table, json, yaml)", s)
	}
}

// Snapshot renders an exported conversation in the requested format.
func Snapshot(snapshot chat.Snapshot, format OutputFormat) (string, error) {
	switch format {
	case OutputFormatJSON:
		return marshalJSON(snapshot)
	case OutputFormatYAML:
		return marshalYAML(snapshot)
	case OutputFormatTable:
		return NewTableFormatter().Transcript(snapshot.Messages), nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

// Actions renders the action catalog in the requested format.
func Actions(descriptors []action.Descriptor, format OutputFormat) (string, error) {
	switch format {
	case OutputFormatJSON:
		return marshalJSON(descriptors)
	case OutputFormatYAML:
		return marshalYAML(descriptors)
	case OutputFormatTable:
		return NewTableFormatter().Actions(descriptors), nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

func marshalJSON(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func marshalYAML(v interface{}) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
