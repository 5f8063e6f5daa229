package rag

import (
	"fmt"
	"os"
	"strings"

	apperrors "order-analyst/errors"

	"gopkg.in/yaml.v3"
)

// Column documents one column of the order data.
type Column struct {
	Name            string `yaml:"-"`
	Description     string `yaml:"description"`
	DataType        string `yaml:"data_type"`
	AdditionalNotes string `yaml:"additional_notes"`
}

// Content is the text embedded for the column.
func (c Column) Content() string {
	content := fmt.Sprintf("Column: %s\nDescription: %s\nData Type: %s", c.Name, c.Description, c.DataType)
	if c.AdditionalNotes != "" {
		content += "\nAdditional notes: " + c.AdditionalNotes
	}
	return content
}

// Documentation is the parsed data documentation file, columns in file order.
type Documentation struct {
	Columns []Column
}

// LoadDocumentation reads a YAML file of the form
//
//	columns:
//	  order_id:
//	    description: ...
//	    data_type: ...
func LoadDocumentation(path string) (*Documentation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read documentation: %w", err)
	}
	return ParseDocumentation(raw)
}

func ParseDocumentation(raw []byte) (*Documentation, error) {
	var file struct {
		Columns yaml.Node `yaml:"columns"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "parse documentation: %v", err)
	}
	if file.Columns.Kind != yaml.MappingNode {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, "documentation has no columns mapping")
	}

	docs := &Documentation{}
	// mapping nodes alternate key, value
	for i := 0; i+1 < len(file.Columns.Content); i += 2 {
		var col Column
		if err := file.Columns.Content[i+1].Decode(&col); err != nil {
			return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "column %s: %v", file.Columns.Content[i].Value, err)
		}
		col.Name = file.Columns.Content[i].Value
		docs.Columns = append(docs.Columns, col)
	}
	return docs, nil
}

// Describe renders the documentation as a bullet list for prompts.
func (d *Documentation) Describe() string {
	var b strings.Builder
	for _, c := range d.Columns {
		fmt.Fprintf(&b, "- %s (%s): %s", c.Name, c.DataType, c.Description)
		if c.AdditionalNotes != "" {
			fmt.Fprintf(&b, " Note: %s", c.AdditionalNotes)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
