package extract

import (
	"fmt"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// HTMLExtractor converts disclosure pages to markdown before normalizing.
type HTMLExtractor struct{}

func (HTMLExtractor) Extract(content []byte) (string, error) {
	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(string(content))
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return Normalize(markdown), nil
}
