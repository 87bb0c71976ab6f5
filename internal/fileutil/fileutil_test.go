package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

type testData struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestReadJSON(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantErr   bool
		wantName  string
		wantValue int
	}{
		{
			name:      "valid JSON",
			content:   `{"name": "test", "value": 42}`,
			wantName:  "test",
			wantValue: 42,
		},
		{
			name:    "invalid JSON",
			content: `{"name": "test", invalid}`,
			wantErr: true,
		},
		{
			name:    "empty object",
			content: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "test.json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write test file: %v", err)
			}

			var data testData
			err := ReadJSON(path, &data)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if data.Name != tt.wantName || data.Value != tt.wantValue {
				t.Errorf("got %+v, want name=%q value=%d", data, tt.wantName, tt.wantValue)
			}
		})
	}
}

func TestReadJSON_Missing(t *testing.T) {
	var data testData
	err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &data)
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestWriteJSONAtomic_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.json")

	if err := WriteJSONAtomic(path, testData{Name: "a", Value: 1}, 0600); err != nil {
		t.Fatalf("WriteJSONAtomic: %v", err)
	}
	if err := WriteJSONAtomic(path, testData{Name: "b", Value: 2}, 0600); err != nil {
		t.Fatalf("WriteJSONAtomic overwrite: %v", err)
	}

	var got testData
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Name != "b" || got.Value != 2 {
		t.Errorf("got %+v after overwrite", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestWriteFileAtomic_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.html")

	if err := WriteFileAtomic(path, []byte("<p>hi</p>"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "out.html" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contains %v, want only out.html", names)
	}
}

func TestWriteFileAtomic_DirectoryTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "taken")
	if err := os.Mkdir(target, 0755); err != nil {
		t.Fatal(err)
	}
	// Renaming a file over a non-empty directory fails; make it non-empty.
	if err := os.WriteFile(filepath.Join(target, "x"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	if err := WriteFileAtomic(target, []byte("data"), 0644); err == nil {
		t.Error("expected error when target is a directory")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}
