package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type askRequest struct {
	Text      string `json:"text" yaml:"text"`
	WebSearch bool   `json:"web_search" yaml:"web_search"`
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     string
		want     askRequest
		wantErr  bool
	}{
		{"yaml by ext", "q.yaml", "text: hi\nweb_search: true\n", askRequest{"hi", true}, false},
		{"json by ext", "q.json", `{"text":"hi"}`, askRequest{Text: "hi"}, false},
		{"repaired json", "q.json", `{"text":"hi", "web_search": true,}`, askRequest{"hi", true}, false},
		{"sniff json", "", `{"text":"hi"}`, askRequest{Text: "hi"}, false},
		{"sniff yaml", "", "text: hello", askRequest{Text: "hello"}, false},
		{"bad yaml", "q.yml", "text: [", askRequest{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got askRequest
			err := ParseRequest([]byte(tt.data), tt.filename, &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseRequest() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoadRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ask.yaml")
	if err := os.WriteFile(path, []byte("text: Review my resume\n"), 0644); err != nil {
		t.Fatal(err)
	}
	var req askRequest
	if err := LoadRequest(path, &req); err != nil {
		t.Fatal(err)
	}
	if req.Text != "Review my resume" {
		t.Errorf("Text = %q", req.Text)
	}
	if err := LoadRequest(filepath.Join(t.TempDir(), "missing.yaml"), &req); err == nil {
		t.Error("LoadRequest(missing) should fail")
	}
}

func TestLoadRequestFromReader(t *testing.T) {
	var req askRequest
	if err := LoadRequestFromReader(strings.NewReader(`{"text":"from stdin"}`), &req); err != nil {
		t.Fatal(err)
	}
	if req.Text != "from stdin" {
		t.Errorf("Text = %q", req.Text)
	}
}
