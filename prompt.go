package linkhub

import (
	"fmt"
	"strings"

	"github.com/zombar/linkhub/models"
)

// BuildPrompt combines the extracted page metadata, the source URL and the
// current category catalog into the instruction sent to the model. Metadata
// values are inserted verbatim; the prompt is plain text, not executable.
func BuildPrompt(meta models.PageMetadata, pageURL string, categories []models.Category) string {
	return fmt.Sprintf(`Analyze the following webpage information and return the result as JSON.

Webpage information:
Title: %s
Description: %s
Keywords: %s
Content: %s

URL: %s

Available categories:
%s

Respond with a JSON object in exactly this format:
{
  "title": "the core title of the page (50 characters or less)",
  "description": "a 2-3 sentence summary of the page content",
  "tags": ["three", "to", "five", "relevant", "tags"],
  "suggestedCategory": category_id
}

Notes:
- Keep the title clear and concise
- The description should capture the essential content
- Focus tags on the tech stack or subject matter
- Pick the best-fitting category from the list above
- Respond with the JSON object only, no other text`,
		meta.Title, meta.Description, meta.Keywords, meta.BodyExcerpt,
		pageURL, formatCategories(categories))
}

// formatCategories serializes the catalog as a flat "id: name, id: name, ..."
// list in catalog order.
func formatCategories(categories []models.Category) string {
	parts := make([]string, 0, len(categories))
	for _, c := range categories {
		parts = append(parts, fmt.Sprintf("%d: %s", c.ID, c.Name))
	}
	return strings.Join(parts, ", ")
}
