package models

import "testing"

func TestTableDenied(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		table    string
		want     bool
	}{
		{"prefix wildcard hits", []string{"temp_%"}, "temp_orders", true},
		{"prefix wildcard misses suffix position", []string{"temp_%"}, "order_temp", false},
		{"literal match", []string{"audit_log"}, "audit_log", true},
		{"literal is case sensitive", []string{"audit_log"}, "Audit_Log", false},
		{"suffix wildcard", []string{"%_bak"}, "customers_bak", true},
		{"inner wildcard", []string{"stg_%_raw"}, "stg_orders_raw", true},
		{"inner wildcard misses", []string{"stg_%_raw"}, "stg_orders", false},
		{"bare wildcard denies everything", []string{"%"}, "anything", true},
		{"no patterns", nil, "temp_orders", false},
		{"second pattern hits", []string{"audit_%", "temp_%"}, "temp_orders", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := SourceDescriptor{TableDenyPatterns: tt.patterns}
			if got := src.TableDenied(tt.table); got != tt.want {
				t.Errorf("TableDenied(%q) with %v = %v, want %v", tt.table, tt.patterns, got, tt.want)
			}
		})
	}
}

func TestSchemaAllowed(t *testing.T) {
	src := SourceDescriptor{SchemaAllowList: []string{"public", "sales"}}
	if !src.SchemaAllowed("sales") {
		t.Error("sales should be allowed")
	}
	if src.SchemaAllowed("internal") {
		t.Error("internal should not be allowed")
	}

	open := SourceDescriptor{}
	if !open.SchemaAllowed("anything") {
		t.Error("empty allow-list should admit every schema")
	}
}

func TestScanRunStatusIsTerminal(t *testing.T) {
	if ScanRunPending.IsTerminal() || ScanRunRunning.IsTerminal() {
		t.Error("PENDING and RUNNING are not terminal")
	}
	if !ScanRunSuccess.IsTerminal() || !ScanRunFailed.IsTerminal() {
		t.Error("SUCCESS and FAILED are terminal")
	}
}
