// Package attachment turns user-supplied files into prompt-safe context.
// An attachment never reaches a prompt raw: Describe renders a single
// sanitized line with the file's name, kind, and a bounded text excerpt.
package attachment

import (
	"fmt"
	"strings"
	"unicode"
)

// Type classifies an attachment by how it can be used in prompts.
type Type string

const (
	TypeText  Type = "text"
	TypePDF   Type = "pdf"
	TypeImage Type = "image"
	TypeFile  Type = "file"
)

// Attachment is one resolved user-supplied file.
type Attachment struct {
	Name    string `json:"name"`
	Type    Type   `json:"type"`
	MIME    string `json:"mime"`
	Size    int64  `json:"size"`
	Pages   int    `json:"pages,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
}

// excerptLimit bounds how much attachment text a prompt line may carry.
const excerptLimit = 480

// Describe renders the prompt line for this attachment. Output is always a
// single sanitized line regardless of the file's content.
func (a *Attachment) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Attachment %q (%s, %d bytes", a.Name, a.MIME, a.Size)
	if a.Pages > 0 {
		fmt.Fprintf(&b, ", %d pages", a.Pages)
	}
	b.WriteString(")")
	if a.Excerpt != "" {
		b.WriteString(". Excerpt: ")
		b.WriteString(a.Excerpt)
	}
	return b.String()
}

// Describe renders one prompt line per attachment.
func Describe(attachments []Attachment) []string {
	lines := make([]string, 0, len(attachments))
	for i := range attachments {
		lines = append(lines, attachments[i].Describe())
	}
	return lines
}

// sanitizeExcerpt collapses whitespace, strips non-printable runes, and
// caps the result so one hostile or binary-ish file cannot flood a prompt.
func sanitizeExcerpt(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsGraphic(r) || r == ' ' || r == '\n' || r == '\t' {
			return r
		}
		return -1
	}, s)
	collapsed := strings.Join(strings.Fields(cleaned), " ")
	runes := []rune(collapsed)
	if len(runes) <= excerptLimit {
		return collapsed
	}
	return string(runes[:excerptLimit]) + "..."
}
