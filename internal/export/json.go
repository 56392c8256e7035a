package export

import (
	"encoding/json"
)

type JSONExporter struct{}

func (e *JSONExporter) Name() string {
	return "json"
}

func (e *JSONExporter) Export(report *Report) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

func NewJSONExporter() Exporter {
	return &JSONExporter{}
}
