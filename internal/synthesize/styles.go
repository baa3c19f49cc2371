package synthesize

import "strings"

// Supported document styles.
const (
	StyleNote    = "note"
	StyleSummary = "summary"
	StyleArticle = "article"
	StyleMindmap = "mindmap"
	StylePost    = "post"
	StyleTable   = "table"
)

var styleInstructions = map[string]string{
	StyleNote: `Write structured study notes in markdown. Use headings for each
topic, bullet points for details, and bold for key terms. Keep the
chronology of the source.`,
	StyleSummary: `Write a concise summary in markdown: one opening sentence
stating the topic, then the main points in order of appearance, then a
short closing takeaway.`,
	StyleArticle: `Write a polished long-form article in markdown with a title,
an introduction, thematic sections with headings, and a conclusion. Flowing
prose, no bullet lists.`,
	StyleMindmap: `Produce a mind map as nested markdown lists: a single root
item naming the topic, major branches as first-level items, details nested
below. No prose outside the list.`,
	StylePost: `Write an engaging social media post: a hook in the first line,
2-4 short paragraphs, and a closing call to action. Add a few fitting
hashtags at the end.`,
	StyleTable: `Extract the key facts into one markdown table. Choose column
headers that fit the content (for example topic, detail, timestamp). Output
only the table.`,
}

// Styles returns the supported style names.
func Styles() []string {
	return []string{StyleNote, StyleSummary, StyleArticle, StyleMindmap, StylePost, StyleTable}
}

// ValidStyle reports whether the style is a member of the supported set.
func ValidStyle(style string) bool {
	_, ok := styleInstructions[strings.ToLower(strings.TrimSpace(style))]
	return ok
}

func instructionsFor(style string) (string, bool) {
	inst, ok := styleInstructions[strings.ToLower(strings.TrimSpace(style))]
	return inst, ok
}
