package markdown

import (
	htm "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// Convert runs HTML through the generic HTML-to-Markdown converter.
func Convert(htmlString string) (string, error) {
	markdown, err := htm.ConvertString(htmlString)
	if err != nil {
		return "", err
	}
	return markdown, nil
}
