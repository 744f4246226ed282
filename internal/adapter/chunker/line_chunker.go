package chunker

// LineChunker splits a file into fixed windows of lines with overlap. It is
// the fallback for languages without a structural parser.
type LineChunker struct {
	maxLines int
	overlap  int
}

func NewLineChunker(maxLines, overlap int) *LineChunker {
	if maxLines < 1 {
		maxLines = 1
	}
	if overlap < 0 || overlap >= maxLines {
		overlap = 0
	}
	return &LineChunker{
		maxLines: maxLines,
		overlap:  overlap,
	}
}

// Chunk returns line windows covering every line of the file. A file that
// fits into one window yields a single span covering all of it.
func (c *LineChunker) Chunk(lines []string) []span {
	if len(lines) == 0 {
		return nil
	}

	var spans []span
	startLine := 0

	for startLine < len(lines) {
		endLine := startLine + c.maxLines
		if endLine > len(lines) {
			endLine = len(lines)
		}

		spans = append(spans, span{
			StartLine: startLine + 1,
			EndLine:   endLine,
		})

		if endLine == len(lines) {
			break
		}

		newStart := endLine - c.overlap
		if newStart <= startLine {
			newStart = startLine + 1
		}
		startLine = newStart
	}

	return spans
}
