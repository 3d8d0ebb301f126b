package processors

import (
	"regexp"
	"strings"
)

var presentationExt = regexp.MustCompile(`(?i)\.pptx?$`)

// PDFName rewrites a presentation file name to its .pdf counterpart.
//
//	Deck.PPTX  -> Deck.pdf
//	talk.ppt   -> talk.pdf
//	report.PDF -> report.pdf
//	notes.key  -> notes.key.pdf
//	README     -> README.pdf
func PDFName(name string) string {
	if presentationExt.MatchString(name) {
		return presentationExt.ReplaceAllString(name, ".pdf")
	}
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return name[:len(name)-len(".pdf")] + ".pdf"
	}
	return name + ".pdf"
}
