package assistant

import "unicode/utf8"

const DefaultSliceSize = 10

// sliceRunes splits text into consecutive pieces of at most size runes.
func sliceRunes(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size < 1 {
		size = DefaultSliceSize
	}
	pieces := make([]string, 0, utf8.RuneCountInString(text)/size+1)
	start := 0
	count := 0
	for i := range text {
		if count == size {
			pieces = append(pieces, text[start:i])
			start = i
			count = 0
		}
		count++
	}
	return append(pieces, text[start:])
}
