package index

import "strings"

// Chunk is one slice of a document destined for the vector store.
type Chunk struct {
	Text  string
	Index int
}

// ChunkText splits text into character-budget chunks with the given
// overlap, breaking on line boundaries where possible. A chunk size of
// zero yields the whole document as a single chunk.
func ChunkText(text string, chunkSize, chunkOverlap int) []Chunk {
	if text == "" {
		return nil
	}
	// Zero size means one node covering the whole document.
	if chunkSize <= 0 || len(text) <= chunkSize {
		return []Chunk{{Text: text, Index: 0}}
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}

	lines := strings.SplitAfter(text, "\n")
	var chunks []Chunk
	var current strings.Builder
	var overlap strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{Text: current.String(), Index: len(chunks)})
		current.Reset()
		if chunkOverlap > 0 && overlap.Len() > 0 {
			tail := overlap.String()
			if len(tail) > chunkOverlap {
				tail = tail[len(tail)-chunkOverlap:]
			}
			current.WriteString(tail)
		}
		overlap.Reset()
	}

	for _, line := range lines {
		// A single oversized line is split hard.
		for len(line) > chunkSize {
			space := chunkSize - current.Len()
			current.WriteString(line[:space])
			line = line[space:]
			overlap.Reset()
			overlap.WriteString(current.String())
			flush()
		}

		if current.Len()+len(line) > chunkSize {
			overlap.Reset()
			overlap.WriteString(current.String())
			flush()
		}
		current.WriteString(line)
	}
	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, Chunk{Text: current.String(), Index: len(chunks)})
	}
	return chunks
}
