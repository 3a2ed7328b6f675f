package exchange

// SpeechChunkRunes is the longest piece of text handed to the synthesizer at once.
const SpeechChunkRunes = 100

// ChunkText splits text into consecutive pieces of at most size characters.
// Boundaries ignore words; multi-byte characters are never split.
func ChunkText(text string, size int) []string {
	if size <= 0 {
		size = SpeechChunkRunes
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
