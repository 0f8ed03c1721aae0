package profile

import (
	"fmt"
	"strings"
	"unicode"

	"devspace-backend/entity"
)

// ChunkSize is the number of words per embedding input.
const ChunkSize = 100

// Describe renders the text a user's embedding is computed from.
func Describe(u *entity.User, status string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is a %s gender from ASU %s campus.\n", u.Name, u.About.Gender, u.About.Campus)
	fmt.Fprintf(&b, "Bio: %s\n", u.About.Bio)
	fmt.Fprintf(&b, "Skills: %s\n", strings.Join(u.About.Skills, ", "))
	fmt.Fprintf(&b, "Hobbies: %s\n", strings.Join(u.About.Hobbies, ", "))
	fmt.Fprintf(&b, "Socials: %s", strings.Join(u.About.Socials, ", "))
	if status != "" {
		fmt.Fprintf(&b, "\nStatus: %s", status)
	}

	return b.String()
}

// Chunk splits text into words and joins them back in groups of size.
// Punctuation separates words and is dropped.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = ChunkSize
	}

	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	chunks := make([]string, 0, (len(words)+size-1)/size)
	for i := 0; i < len(words); i += size {
		end := i + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}

	return chunks
}
