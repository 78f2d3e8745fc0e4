package postgres

import (
	"strings"
	"testing"

	"github.com/MrWong99/natuvoice/internal/knowledge"
)

func TestParseTable(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "knowledge_chunks", want: `"knowledge_chunks"`},
		{in: " catalog.chunks ", want: `"catalog"."chunks"`},
		{in: `bad"name`, want: `"bad""name"`},
		{in: "", wantErr: true},
		{in: "a.b.c", wantErr: true},
		{in: "a.", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTable(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTable: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("String() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTableIndexName(t *testing.T) {
	tbl, _ := parseTable("catalog.chunks")
	if got := tbl.index("embedding_idx"); got != `"chunks_embedding_idx"` {
		t.Errorf("index = %s", got)
	}
}

func TestBuildSearch_NoFilter(t *testing.T) {
	tbl, _ := parseTable("knowledge_chunks")
	q, args := buildSearch(tbl, []float32{1, 0}, 4, nil)

	if strings.Contains(q, "WHERE") {
		t.Errorf("unexpected WHERE clause:\n%s", q)
	}
	if !strings.Contains(q, "LIMIT  $2") {
		t.Errorf("limit not bound as $2:\n%s", q)
	}
	if len(args) != 2 || args[1] != 4 {
		t.Errorf("args = %v", args)
	}
}

func TestBuildSearch_FilterIsParameterised(t *testing.T) {
	tbl, _ := parseTable("knowledge_chunks")
	filter := knowledge.Filter{
		"section":    "uso",
		"product_id": "p-1'; DROP TABLE x; --",
		"empty":      "",
	}
	q, args := buildSearch(tbl, []float32{1}, 3, filter)

	if strings.Contains(q, "DROP TABLE") {
		t.Fatalf("filter value leaked into SQL:\n%s", q)
	}
	for _, want := range []string{
		"metadata->>$2 = $3",
		"metadata->>$4 = $5",
		"LIMIT  $6",
	} {
		if !strings.Contains(q, want) {
			t.Errorf("query missing %q:\n%s", want, q)
		}
	}
	// Keys are sorted so the query text is stable.
	if args[1] != "product_id" || args[3] != "section" || args[4] != "uso" {
		t.Errorf("args = %v", args)
	}
}
