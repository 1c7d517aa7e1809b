package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// jsonValue marshals v for a JSON/JSONB column.
func jsonValue(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal json column: %w", err)
	}
	return string(b), nil
}

// jsonScan unmarshals a nullable JSON column into dst.
func jsonScan(src sql.NullString, dst any) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(src.String), dst); err != nil {
		return fmt.Errorf("unmarshal json column: %w", err)
	}
	return nil
}
