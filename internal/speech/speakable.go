package speech

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var markup = strings.NewReplacer("*", "", "_", "", "`", "", "#", "")

// Speakable flattens HTML and drops markdown symbols so a reply reads
// naturally when spoken.
func Speakable(text string) string {
	if strings.ContainsRune(text, '<') {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(text)); err == nil {
			text = doc.Text()
		}
	}
	return strings.Join(strings.Fields(markup.Replace(text)), " ")
}
