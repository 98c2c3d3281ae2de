package main

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/poiesic/marginalia/core"
)

// chapterHeading matches lines such as "Chapter 3", "CHAPTER IV: The Storm"
// or "Chapter 12. Homecoming".
var chapterHeading = regexp.MustCompile(`(?mi)^[ \t]*chapter[ \t]+([0-9]+|[ivxlcdm]+)\b[ \t]*[.:\-]?[ \t]*(.*)$`)

// parseDocument builds a document from a text file. The title comes from the
// file name. Text before the first chapter heading becomes chapter "0".
func parseDocument(userID, path, text string) *core.Document {
	doc := &core.Document{
		UserID: userID,
		Title:  titleFromPath(path),
	}

	matches := chapterHeading.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		doc.Content = strings.TrimSpace(text)
		return doc
	}

	if preface := strings.TrimSpace(text[:matches[0][0]]); preface != "" {
		doc.Chapters = append(doc.Chapters, core.Chapter{ID: "0", Content: preface})
	}
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		doc.Chapters = append(doc.Chapters, core.Chapter{
			ID:      strings.ToLower(text[m[2]:m[3]]),
			Title:   strings.TrimSpace(text[m[4]:m[5]]),
			Content: strings.TrimSpace(text[m[1]:end]),
		})
	}
	return doc
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.Join(strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	}), " ")
}
