package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/models"
)

func texts(units []models.Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.Text
	}
	return out
}

func TestSegment(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []models.Unit
	}{
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
		{
			name:  "heading then paragraph",
			input: "# Title\n\nHello world.\nSecond line.\n\n",
			want:  []models.Unit{{Text: "Hello world.\nSecond line.\n", Kind: models.Prose}},
		},
		{
			name:  "metadata is skipped",
			input: "---\ntitle: x\n---\nBody text.\n\n",
			want:  []models.Unit{{Text: "Body text.\n", Kind: models.Prose}},
		},
		{
			name:  "fenced code block keeps fences",
			input: "```go\nfmt.Println(1)\n```\n",
			want:  []models.Unit{{Text: "```go\nfmt.Println(1)\n```\n", Kind: models.CodeBlock}},
		},
		{
			name:  "blank lines inside code are kept",
			input: "```\na\n\nb\n```\n",
			want:  []models.Unit{{Text: "```\na\n\nb\n```\n", Kind: models.CodeBlock}},
		},
		{
			name:  "headings and metadata markers inside code are literal",
			input: "```\n# not a heading\n---\n```\n",
			want:  []models.Unit{{Text: "```\n# not a heading\n---\n```\n", Kind: models.CodeBlock}},
		},
		{
			name:  "prose then code in source order",
			input: "Intro.\n\n```sh\nls\n```\nOutro.\n\n",
			want: []models.Unit{
				{Text: "Intro.\n", Kind: models.Prose},
				{Text: "```sh\nls\n```\n", Kind: models.CodeBlock},
				{Text: "Outro.\n", Kind: models.Prose},
			},
		},
		{
			name:  "fence line directly after prose is prose",
			input: "Text\n```\ncode\n```\n\n",
			want:  []models.Unit{{Text: "Text\n```\ncode\n```\n", Kind: models.Prose}},
		},
		{
			name:  "whitespace-only line stays inside a paragraph",
			input: "One.\n   \nTwo.\n\n",
			want:  []models.Unit{{Text: "One.\n   \nTwo.\n", Kind: models.Prose}},
		},
		{
			name:  "whitespace-only line opens a paragraph",
			input: "# T\n\t\nBody.\n\n",
			want:  []models.Unit{{Text: "\t\nBody.\n", Kind: models.Prose}},
		},
		{
			name:  "crlf line endings",
			input: "# T\r\n\r\nHello.\r\n\r\n",
			want:  []models.Unit{{Text: "Hello.\n", Kind: models.Prose}},
		},
		{
			name:  "only headings and blanks",
			input: "# A\n\n## B\n\n",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Segment(tt.input))
		})
	}
}

func TestSegment_DropsUnterminatedParagraph(t *testing.T) {
	units := Segment("Kept.\n\nLast paragraph without blank line")
	assert.Equal(t, []string{"Kept.\n"}, texts(units))

	units = Segment("Single line no newline")
	assert.Empty(t, units)

	units = Segment("Trailing newline only\n")
	assert.Empty(t, units)
}

func TestSegment_DropsUnclosedCodeBlock(t *testing.T) {
	units := Segment("Intro.\n\n```\nnever closed\n")
	require.Len(t, units, 1)
	assert.Equal(t, models.Prose, units[0].Kind)
	assert.Equal(t, "Intro.\n", units[0].Text)
}

func TestSegment_UnclosedMetadataSwallowsRest(t *testing.T) {
	assert.Empty(t, Segment("---\ntitle: x\nBody.\n\n"))
}

func TestSegment_UnitsAreNonEmptyAndNewlineTerminated(t *testing.T) {
	input := "# Doc\n\nA para.\n\n```\nx\n```\n\n- list item\n- another\n\nFinal.\n\n"
	units := Segment(input)
	require.Len(t, units, 4)
	for _, u := range units {
		assert.NotEmpty(t, u.Text)
		assert.Equal(t, byte('\n'), u.Text[len(u.Text)-1])
	}
}

func TestLines(t *testing.T) {
	assert.Nil(t, lines(""))
	assert.Equal(t, []string{"a", "b"}, lines("a\nb"))
	assert.Equal(t, []string{"a", "b"}, lines("a\r\nb\r\n"))
	assert.Equal(t, []string{"", ""}, lines("\n\n"))
}
