package schema

import (
	"bytes"
	"encoding/json"
)

type tableJSON struct {
	Columns     json.RawMessage `json:"columns"`
	PrimaryKeys []string        `json:"primary_keys"`
	ForeignKeys []ForeignKey    `json:"foreign_keys"`
}

// MarshalJSON encodes the table in the schema file format, keeping column order.
func (t *Table) MarshalJSON() ([]byte, error) {
	var cols bytes.Buffer
	cols.WriteByte('{')
	for i, c := range t.Columns {
		if i > 0 {
			cols.WriteByte(',')
		}
		if err := writeKeyValue(&cols, c.Name, c.Type); err != nil {
			return nil, err
		}
	}
	cols.WriteByte('}')

	out := tableJSON{
		Columns:     cols.Bytes(),
		PrimaryKeys: t.PrimaryKeys,
		ForeignKeys: t.ForeignKeys,
	}
	if out.PrimaryKeys == nil {
		out.PrimaryKeys = []string{}
	}
	if out.ForeignKeys == nil {
		out.ForeignKeys = []ForeignKey{}
	}
	return json.Marshal(out)
}

// MarshalJSON encodes the model as a map of table name to table, in model order.
func (m *Model) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range m.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKeyValue(&buf, name, m.tables[name]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKeyValue(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}
