package db

import "testing"

func TestDescribeSQL(t *testing.T) {
	tests := []struct {
		sql       string
		operation string
		table     string
	}{
		{"SELECT id FROM features WHERE module_id = $1", "select", "features"},
		{"\n  INSERT INTO outbox_events (a) VALUES ($1)", "insert", "outbox_events"},
		{"UPDATE modules SET progress = $1", "update", "modules"},
		{"DELETE FROM projects WHERE id = $1", "delete", "projects"},
		{"BEGIN", "begin", "unknown"},
		{"", "unknown", "unknown"},
	}

	for _, tt := range tests {
		op, table := describeSQL(tt.sql)
		if op != tt.operation || table != tt.table {
			t.Errorf("describeSQL(%q) = (%q, %q), want (%q, %q)", tt.sql, op, table, tt.operation, tt.table)
		}
	}
}
