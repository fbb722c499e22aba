package fetch

import "testing"

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain paragraphs",
			input:    "<p>Hello</p><p>World</p>",
			expected: "Hello\nWorld",
		},
		{
			name:     "strips script and style",
			input:    "<style>p{color:red}</style><p>Visible</p><script>alert(1)</script>",
			expected: "Visible",
		},
		{
			name:     "decodes entities",
			input:    "<p>Tom &amp; Jerry &lt;3</p>",
			expected: "Tom & Jerry <3",
		},
		{
			name:     "collapses whitespace",
			input:    "<div>  lots\t of\n   space  </div>",
			expected: "lots of space",
		},
		{
			name:     "br breaks lines",
			input:    "line one<br/>line two",
			expected: "line one\nline two",
		},
		{
			name:     "list items",
			input:    "<ul><li>first</li><li>second</li></ul>",
			expected: "first\nsecond",
		},
		{
			name:     "inline tags keep flow",
			input:    "<p>Some <b>bold</b> and <a href=\"#\">linked</a> text</p>",
			expected: "Some bold and linked text",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "nested blocks squeeze blank lines",
			input:    "<div><div><p>deep</p></div></div><p>after</p>",
			expected: "deep\nafter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HTMLToText(tt.input)
			if got != tt.expected {
				t.Errorf("HTMLToText(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseSender(t *testing.T) {
	tests := []struct {
		name        string
		from        string
		wantName    string
		wantAddress string
	}{
		{"display name with address", `"Kim Min" <kim@example.com>`, "Kim Min", "kim@example.com"},
		{"bare address", "noreply@example.com", "", "noreply@example.com"},
		{"unparseable kept verbatim", "mailer-daemon", "", "mailer-daemon"},
		{"angle brackets no name", "<svc@example.com>", "", "svc@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, addr := parseSender(tt.from)
			if name != tt.wantName || addr != tt.wantAddress {
				t.Errorf("parseSender(%q) = (%q, %q), expected (%q, %q)",
					tt.from, name, addr, tt.wantName, tt.wantAddress)
			}
		})
	}
}
