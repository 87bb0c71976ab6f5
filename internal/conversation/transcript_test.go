package conversation

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hummingbird-labs/hummingbird/internal/products"
)

func TestRenderer_Convert(t *testing.T) {
	r := NewRenderer()

	tests := []struct {
		name    string
		input   string
		want    []string
		notWant []string
	}{
		{
			name:  "bold",
			input: "A **fast** tool",
			want:  []string{"<strong>fast</strong>"},
		},
		{
			name:  "list",
			input: "- one\n- two",
			want:  []string{"<ul>", "<li>one</li>"},
		},
		{
			name:    "script stripped",
			input:   "hi <script>alert(1)</script>",
			notWant: []string{"<script"},
		},
		{
			name:  "links get nofollow",
			input: "[site](https://example.com)",
			want:  []string{`href="https://example.com"`, "nofollow"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Convert(tt.input)
			if err != nil {
				t.Fatalf("Convert() error: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Convert(%q) = %q, missing %q", tt.input, got, w)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(got, nw) {
					t.Errorf("Convert(%q) = %q, must not contain %q", tt.input, got, nw)
				}
			}
		})
	}
}

func TestRenderTranscript(t *testing.T) {
	msgs := []Message{
		NewMessage(SenderBot, Greeting),
		NewMessage(SenderUser, "A **website** builder"),
	}
	items := []products.Item{
		{ID: "railway", Name: "Railway", Description: "Deploy <apps>", WebsiteURL: "https://railway.app"},
	}

	var buf bytes.Buffer
	if err := NewRenderer().RenderTranscript(&buf, "Pitch abc123", msgs, items); err != nil {
		t.Fatalf("RenderTranscript() error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"<title>Pitch abc123</title>",
		`class="message bot"`,
		`class="message user"`,
		"<strong>website</strong>",
		"Hummingbird",
		"You",
		`href="https://railway.app"`,
		"Deploy &lt;apps&gt;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("transcript missing %q:\n%s", want, out)
		}
	}
}

func TestRenderTranscript_NoProducts(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRenderer().RenderTranscript(&buf, "t", nil, nil); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "Recommended tools") {
		t.Error("products section rendered without products")
	}
}
