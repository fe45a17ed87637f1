package formatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat_Steps(t *testing.T) {
	blocks := Format("Step 1: Do X\n\nStep 2: Do Y")

	require.Len(t, blocks, 2)
	assert.Equal(t, Block{Type: BlockStep, Number: 1, Text: "Do X"}, blocks[0])
	assert.Equal(t, Block{Type: BlockStep, Number: 2, Text: "Do Y"}, blocks[1])
}

func TestFormat_StepSeparators(t *testing.T) {
	for _, in := range []string{"Step 3: Add", "Step 3. Add", "Step 3) Add", "Step 3 - Add", "step 3: Add"} {
		t.Run(in, func(t *testing.T) {
			blocks := Format(in)
			require.Len(t, blocks, 1)
			assert.Equal(t, BlockStep, blocks[0].Type)
			assert.Equal(t, 3, blocks[0].Number)
			assert.Equal(t, "Add", blocks[0].Text)
		})
	}
}

func TestFormat_Note(t *testing.T) {
	blocks := Format("Note: remember units")

	require.Len(t, blocks, 1)
	assert.Equal(t, BlockNote, blocks[0].Type)
	assert.Equal(t, "remember units", blocks[0].Text)
}

func TestFormat_ExampleAndAnswer(t *testing.T) {
	blocks := Format("Example: three apples and two pears\n\nAnswer: five fruits")

	require.Len(t, blocks, 2)
	assert.Equal(t, Block{Type: BlockExample, Text: "three apples and two pears"}, blocks[0])
	assert.Equal(t, Block{Type: BlockAnswer, Text: "five fruits"}, blocks[1])
}

func TestFormat_UnorderedList(t *testing.T) {
	blocks := Format("- apple\n- banana")

	require.Len(t, blocks, 1)
	assert.Equal(t, BlockList, blocks[0].Type)
	assert.False(t, blocks[0].Ordered)
	assert.Equal(t, []string{"apple", "banana"}, blocks[0].Items)
}

func TestFormat_ListMarkers(t *testing.T) {
	t.Run("bullet", func(t *testing.T) {
		blocks := Format("• apple\n• banana")
		require.Len(t, blocks, 1)
		assert.Equal(t, []string{"apple", "banana"}, blocks[0].Items)
	})

	t.Run("star", func(t *testing.T) {
		blocks := Format("* apple\n* banana")
		require.Len(t, blocks, 1)
		assert.Equal(t, BlockList, blocks[0].Type)
		assert.Equal(t, []string{"apple", "banana"}, blocks[0].Items)
	})

	t.Run("ordered", func(t *testing.T) {
		blocks := Format("1. one\n2) two")
		require.Len(t, blocks, 1)
		assert.True(t, blocks[0].Ordered)
		assert.Equal(t, []string{"one", "two"}, blocks[0].Items)
	})

	t.Run("continuation line", func(t *testing.T) {
		blocks := Format("- apple\n  red and crunchy\n- banana")
		require.Len(t, blocks, 1)
		assert.Equal(t, []string{"apple red and crunchy", "banana"}, blocks[0].Items)
	})
}

func TestFormat_Equation(t *testing.T) {
	blocks := Format("2x + 5 = 15")

	require.Len(t, blocks, 1)
	assert.Equal(t, Block{Type: BlockEquation, Text: "2x + 5 = 15"}, blocks[0])
}

func TestFormat_Priority(t *testing.T) {
	tests := []struct {
		in   string
		want BlockType
	}{
		{"- use **bold** here", BlockMarkdown},
		{"Step 1: x = 2", BlockStep},
		{"Answer: x = 5", BlockEquation},
		{"Note: see Example: below", BlockNote},
		{"1. x = 2\n2. y = 3", BlockList},
		{"Just a sentence.", BlockParagraph},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			blocks := Format(tt.in)
			require.Len(t, blocks, 1)
			assert.Equal(t, tt.want, blocks[0].Type)
		})
	}
}

func TestFormat_Markdown(t *testing.T) {
	t.Run("bold", func(t *testing.T) {
		blocks := Format("This is **important** stuff")
		require.Len(t, blocks, 1)
		assert.Equal(t, BlockMarkdown, blocks[0].Type)
		assert.Equal(t, []Run{
			{Text: "This is "},
			{Text: "important", Bold: true},
			{Text: " stuff"},
		}, blocks[0].Runs)
		assert.Equal(t, "This is important stuff", blocks[0].Text)
	})

	t.Run("underscore bold and italic", func(t *testing.T) {
		blocks := Format("__Key__ idea: solve for *x* now")
		require.Len(t, blocks, 1)
		assert.Equal(t, []Run{
			{Text: "Key", Bold: true},
			{Text: " idea: solve for "},
			{Text: "x", Italic: true},
			{Text: " now"},
		}, blocks[0].Runs)
	})

	t.Run("heading", func(t *testing.T) {
		blocks := Format("## Fractions")
		require.Len(t, blocks, 1)
		assert.Equal(t, BlockMarkdown, blocks[0].Type)
		assert.Equal(t, 2, blocks[0].Heading)
		assert.Equal(t, "Fractions", blocks[0].Text)
	})
}

func TestFormat_Paragraphs(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Format(""))
		assert.Empty(t, Format("\n\n   \n"))
	})

	t.Run("order preserved and windows newlines", func(t *testing.T) {
		blocks := Format("Note: a\r\n\r\nplain text\r\n\r\nAnswer: b")
		require.Len(t, blocks, 3)
		assert.Equal(t, BlockNote, blocks[0].Type)
		assert.Equal(t, BlockParagraph, blocks[1].Type)
		assert.Equal(t, BlockAnswer, blocks[2].Type)
	})
}

func TestParseInline_Unclosed(t *testing.T) {
	runs := ParseInline("5 * 3 and **half")
	require.Len(t, runs, 1)
	assert.Equal(t, "5 * 3 and **half", runs[0].Text)
	assert.False(t, runs[0].Bold)
}

func TestRenderHTML(t *testing.T) {
	t.Run("escapes raw html", func(t *testing.T) {
		out, err := RenderHTML(Format("<script>alert(1)</script>"))
		require.NoError(t, err)
		assert.NotContains(t, string(out), "<script>")
		assert.Contains(t, string(out), "&lt;script&gt;")
	})

	t.Run("escapes inside emphasis", func(t *testing.T) {
		out, err := RenderHTML(Format("**<b>x</b>**"))
		require.NoError(t, err)
		assert.Contains(t, string(out), "<strong>&lt;b&gt;x&lt;/b&gt;</strong>")
	})

	t.Run("step and list markup", func(t *testing.T) {
		out, err := RenderHTML(Format("Step 1: Do X\n\n- apple\n- banana"))
		require.NoError(t, err)
		assert.Contains(t, string(out), `<span class="hh-step-number">Step 1</span><p>Do X</p>`)
		assert.Contains(t, string(out), "<ul class=\"hh-list\"><li>apple</li><li>banana</li></ul>")
	})
}
