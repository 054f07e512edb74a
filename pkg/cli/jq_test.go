package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestApplyJQ(t *testing.T) {
	result := map[string]any{
		"memories": []map[string]any{
			{"memory_id": "mem_a", "content": "first"},
			{"memory_id": "mem_b", "content": "second"},
		},
	}

	values, err := ApplyJQ(".memories[].content", result)
	if err != nil {
		t.Fatalf("ApplyJQ error: %v", err)
	}
	if len(values) != 2 || values[0] != "first" || values[1] != "second" {
		t.Errorf("values = %v", values)
	}
}

func TestApplyJQ_InvalidExpression(t *testing.T) {
	if _, err := ApplyJQ(".[broken", map[string]any{}); err == nil {
		t.Error("expected parse error")
	}
}

func TestOutputWithJQ(t *testing.T) {
	var buf bytes.Buffer
	err := Output(map[string]any{"count": 3, "noise": "x"}, OutputOptions{
		Format: FormatJSON,
		Writer: &buf,
		JQ:     ".count",
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "3" {
		t.Errorf("output = %q", buf.String())
	}
}
