package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the schema file at path. Files ending in .yaml or .yml are parsed as YAML,
// anything else as JSON. Returns ErrFileNotFound when path does not exist and ErrFormat
// when the content is not a map of tables with columns, primary_keys and foreign_keys.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// Save writes m to path as indented JSON in the schema file format.
func Save(path string, m *Model) error {
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create schema dir: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write schema file: %w", err)
	}
	return nil
}

// ParseJSON decodes the JSON schema format. Table and column order follow the document.
func ParseJSON(data []byte) (*Model, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var tables []*Table
	err := decodeObject(dec, func(name string) error {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		t, err := decodeJSONTable(name, raw)
		if err != nil {
			return err
		}
		tables = append(tables, t)
		return nil
	})
	if err != nil {
		return nil, formatErr(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after schema object", ErrFormat)
	}
	return NewModel(tables...)
}

// decodeObject walks the next JSON object in dec, calling fn for every key with the
// decoder positioned on the value. Duplicate keys are rejected.
func decodeObject(dec *json.Decoder, fn func(key string) error) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: expected an object", ErrFormat)
	}
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: expected an object key", ErrFormat)
		}
		if seen[key] {
			return fmt.Errorf("%w: duplicate key %q", ErrFormat, key)
		}
		seen[key] = true
		if err := fn(key); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

func decodeJSONTable(name string, raw json.RawMessage) (*Table, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: table %q is not an object", ErrFormat, name)
	}
	for _, required := range []string{"columns", "primary_keys", "foreign_keys"} {
		v, ok := fields[required]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return nil, fmt.Errorf("%w: table %q is missing %q", ErrFormat, name, required)
		}
	}

	t := &Table{Name: name}
	dec := json.NewDecoder(bytes.NewReader(fields["columns"]))
	err := decodeObject(dec, func(col string) error {
		var typ string
		if err := dec.Decode(&typ); err != nil {
			return fmt.Errorf("%w: table %q column %q type is not a string", ErrFormat, name, col)
		}
		t.Columns = append(t.Columns, Column{Name: col, Type: typ})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("table %q columns: %w", name, formatErr(err))
	}

	if err := json.Unmarshal(fields["primary_keys"], &t.PrimaryKeys); err != nil {
		return nil, fmt.Errorf("%w: table %q primary_keys must be a list of strings", ErrFormat, name)
	}

	var fks []struct {
		Column           *string `json:"column"`
		ReferencesTable  *string `json:"references_table"`
		ReferencesColumn *string `json:"references_column"`
	}
	if err := json.Unmarshal(fields["foreign_keys"], &fks); err != nil {
		return nil, fmt.Errorf("%w: table %q foreign_keys must be a list of objects", ErrFormat, name)
	}
	for i, fk := range fks {
		if fk.Column == nil || fk.ReferencesTable == nil || fk.ReferencesColumn == nil {
			return nil, fmt.Errorf("%w: table %q foreign key %d is missing a field", ErrFormat, name, i)
		}
		t.ForeignKeys = append(t.ForeignKeys, ForeignKey{
			Column:           *fk.Column,
			ReferencesTable:  *fk.ReferencesTable,
			ReferencesColumn: *fk.ReferencesColumn,
		})
	}
	return t, nil
}

// ParseYAML decodes the same schema format written as YAML.
func ParseYAML(data []byte) (*Model, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a map of tables", ErrFormat)
	}
	root := doc.Content[0]
	tables := make([]*Table, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		t, err := decodeYAMLTable(root.Content[i].Value, root.Content[i+1])
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return NewModel(tables...)
}

func decodeYAMLTable(name string, node *yaml.Node) (*Table, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: table %q is not a map", ErrFormat, name)
	}
	fields := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		fields[node.Content[i].Value] = node.Content[i+1]
	}
	for _, required := range []string{"columns", "primary_keys", "foreign_keys"} {
		if v, ok := fields[required]; !ok || v.Tag == "!!null" {
			return nil, fmt.Errorf("%w: table %q is missing %q", ErrFormat, name, required)
		}
	}

	t := &Table{Name: name}
	cols := fields["columns"]
	if cols.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: table %q columns must be a map", ErrFormat, name)
	}
	for i := 0; i+1 < len(cols.Content); i += 2 {
		v := cols.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: table %q column %q type is not a string", ErrFormat, name, cols.Content[i].Value)
		}
		t.Columns = append(t.Columns, Column{Name: cols.Content[i].Value, Type: v.Value})
	}

	if err := fields["primary_keys"].Decode(&t.PrimaryKeys); err != nil {
		return nil, fmt.Errorf("%w: table %q primary_keys must be a list of strings", ErrFormat, name)
	}

	var fks []struct {
		Column           *string `yaml:"column"`
		ReferencesTable  *string `yaml:"references_table"`
		ReferencesColumn *string `yaml:"references_column"`
	}
	if err := fields["foreign_keys"].Decode(&fks); err != nil {
		return nil, fmt.Errorf("%w: table %q foreign_keys must be a list of maps", ErrFormat, name)
	}
	for i, fk := range fks {
		if fk.Column == nil || fk.ReferencesTable == nil || fk.ReferencesColumn == nil {
			return nil, fmt.Errorf("%w: table %q foreign key %d is missing a field", ErrFormat, name, i)
		}
		t.ForeignKeys = append(t.ForeignKeys, ForeignKey{
			Column:           *fk.Column,
			ReferencesTable:  *fk.ReferencesTable,
			ReferencesColumn: *fk.ReferencesColumn,
		})
	}
	return t, nil
}

// formatErr tags decoder errors that are not already schema errors as ErrFormat.
func formatErr(err error) error {
	if errors.Is(err, ErrFormat) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrFormat, err)
}
