package jsonrepair

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestExtractStripsSurroundingText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "clean object",
			input: `{"title":"Nina"}`,
			want:  `{"title":"Nina"}`,
		},
		{
			name:  "markdown fences",
			input: "```json\n{\"title\":\"Nina\"}\n```",
			want:  `{"title":"Nina"}`,
		},
		{
			name:  "chatty preamble and epilogue",
			input: "Here is your book:\n{\"title\":\"Nina\"}\nEnjoy!",
			want:  `{"title":"Nina"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.input)
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Extract = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractNoJSON(t *testing.T) {
	_, err := Extract("I'm sorry, I can't produce that.")
	if !errors.Is(err, ErrNoJSON) {
		t.Errorf("Expected ErrNoJSON, got %v", err)
	}
}

func TestRepairTruncatedMidArray(t *testing.T) {
	full := `{"title":"T","pages":[{"page":1,"x":"a"},{"page":2,"x":"b"},{"page":3,"x":"c"}]}`
	// Cut in the middle of the third element.
	truncated := full[:strings.Index(full, `"c"`)+1]

	repaired, err := Repair(truncated)
	if err != nil {
		t.Fatalf("Repair failed: %v", err)
	}

	var doc struct {
		Title string `json:"title"`
		Pages []struct {
			Page int `json:"page"`
		} `json:"pages"`
	}
	if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
		t.Fatalf("Repaired document does not parse: %v\n%s", err, repaired)
	}
	if len(doc.Pages) != 2 {
		t.Errorf("Expected 2 complete leading elements, got %d", len(doc.Pages))
	}
	if doc.Pages[0].Page != 1 || doc.Pages[1].Page != 2 {
		t.Errorf("Unexpected surviving pages: %+v", doc.Pages)
	}
}

func TestRepairTruncatedMidString(t *testing.T) {
	truncated := `{"pages":[{"page":4,"text":"Once upon a time"},{"page":5,"text":"Nina wal`

	repaired, err := Repair(truncated)
	if err != nil {
		t.Fatalf("Repair failed: %v", err)
	}

	var doc struct {
		Pages []struct {
			Page int    `json:"page"`
			Text string `json:"text"`
		} `json:"pages"`
	}
	if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
		t.Fatalf("Repaired document does not parse: %v\n%s", err, repaired)
	}
	if len(doc.Pages) != 1 || doc.Pages[0].Page != 4 {
		t.Errorf("Expected only page 4 to survive, got %+v", doc.Pages)
	}
}

func TestRepairIgnoresBracesInsideStrings(t *testing.T) {
	truncated := `{"pages":[{"page":4,"text":"he said {hello} and..."},{"page":5,"te`

	repaired, err := Repair(truncated)
	if err != nil {
		t.Fatalf("Repair failed: %v", err)
	}
	if !json.Valid([]byte(repaired)) {
		t.Fatalf("Repaired document not valid: %s", repaired)
	}
	if !strings.Contains(repaired, "{hello}") {
		t.Errorf("Braces inside string were mangled: %s", repaired)
	}
}

func TestRepairNothingToSalvage(t *testing.T) {
	if _, err := Repair(`{"title":"Ni`); err == nil {
		t.Error("Expected Repair to fail when no complete element exists")
	}
}

func TestExtractRepairsTruncatedResponse(t *testing.T) {
	truncated := `Sure! {"title":"T","pages":[{"page":2,"type":"dedication"},{"page":3,"type":"image","image_prompt":"a ligh`

	got, err := Extract(truncated)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(got), &doc); err != nil {
		t.Fatalf("Extracted document does not parse: %v", err)
	}
	pages, ok := doc["pages"].([]any)
	if !ok || len(pages) != 1 {
		t.Errorf("Expected 1 surviving page, got %v", doc["pages"])
	}
}

func TestUnmarshal(t *testing.T) {
	var v struct {
		Title string `json:"title"`
	}
	if err := Unmarshal("noise {\"title\":\"ok\"} noise", &v); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if v.Title != "ok" {
		t.Errorf("Title = %q, want ok", v.Title)
	}
}
