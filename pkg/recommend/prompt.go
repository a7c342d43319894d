package recommend

import (
	"encoding/json"
	"fmt"
	"strings"

	"cherrybook/pkg/ai"
	"cherrybook/pkg/domain"
)

const systemPrompt = `You are an expert bookseller at "Cherry on Book", a classy bookstore.
You only recommend books that appear in the catalog you are given and you refer to them by their id.`

// catalogEntry is the subset of a book the model is allowed to see.
type catalogEntry struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
}

func projectCatalog(books []domain.Book) []catalogEntry {
	out := make([]catalogEntry, 0, len(books))
	for _, b := range books {
		out = append(out, catalogEntry{
			ID:          b.ID,
			Title:       b.Title,
			Author:      b.Author,
			Description: b.Description,
			Tags:        strings.Join(b.Tags, ", "),
		})
	}
	return out
}

func buildPrompt(query string, books []domain.Book, maxResults int) (string, error) {
	catalogJSON, err := json.Marshal(projectCatalog(books))
	if err != nil {
		return "", fmt.Errorf("encode catalog: %w", err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "User Query: %q\n\n", query)
	sb.WriteString("Here is our catalog:\n")
	sb.Write(catalogJSON)
	sb.WriteString("\n\nTask:\n")
	sb.WriteString("1. Analyze the user's query (mood, genre, specific request).\n")
	fmt.Fprintf(&sb, "2. Select up to %d books from the catalog that best match.\n", maxResults)
	sb.WriteString("3. Provide a brief, charming reason for each recommendation.\n")
	sb.WriteString("4. Write a short, welcoming summary message for the user.\n\n")
	sb.WriteString("Return strictly JSON.")
	return sb.String(), nil
}

// responseSchema describes {recommendations: [{bookId, reason}], message}.
func responseSchema() *ai.Schema {
	return &ai.Schema{
		Type: ai.TypeObject,
		Properties: map[string]*ai.Schema{
			"recommendations": {
				Type: ai.TypeArray,
				Items: &ai.Schema{
					Type: ai.TypeObject,
					Properties: map[string]*ai.Schema{
						"bookId": {Type: ai.TypeString, Description: "id of a catalog book"},
						"reason": {Type: ai.TypeString},
					},
					Required: []string{"bookId", "reason"},
				},
			},
			"message": {Type: ai.TypeString},
		},
		Required: []string{"recommendations", "message"},
	}
}
