package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripComments_CStyle(t *testing.T) {
	src := "x := 1 // one\n/* block\nstill */ y := \"// not a comment\"\n"
	got := StripComments(src, "go")

	assert.Equal(t, strings.Count(src, "\n"), strings.Count(got, "\n"))
	assert.NotContains(t, got, "one")
	assert.NotContains(t, got, "block")
	assert.Contains(t, got, `"// not a comment"`)
	assert.Contains(t, got, "y := ")
}

func TestStripComments_Python(t *testing.T) {
	src := "def total(x): return x*2  # doubled\ns = '# kept'\n"
	got := StripComments(src, "python")

	assert.Contains(t, got, "def total(x): return x*2")
	assert.NotContains(t, got, "doubled")
	assert.Contains(t, got, "'# kept'")
}

func TestStripComments_RubyBlock(t *testing.T) {
	src := "=begin\ndocs\n=end\ndef run\nend\n"
	got := StripComments(src, "ruby")

	assert.NotContains(t, got, "docs")
	assert.Contains(t, got, "def run")
	assert.Equal(t, strings.Count(src, "\n"), strings.Count(got, "\n"))
}

func TestStripComments_UnknownLanguage(t *testing.T) {
	src := "// whatever"
	assert.Equal(t, src, StripComments(src, "cobol"))
	assert.False(t, HasCommentSyntax("cobol"))
}

func TestNormalize_CosmeticEditsCollapse(t *testing.T) {
	a := "def total(x):\n    return x*2\n"
	b := "def total(x):   \n\n\n    # doubles\n    return x*2\n\n# trailing note\n"
	assert.Equal(t, Normalize(a, "python"), Normalize(b, "python"))
}
