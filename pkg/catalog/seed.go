package catalog

import "cherrybook/pkg/domain"

var seedBooks = []domain.Book{
	{
		ID:          "1",
		Title:       "The Midnight Library",
		Author:      "Matt Haig",
		Price:       599,
		Rating:      4.8,
		CoverURL:    "https://picsum.photos/300/450?random=1",
		Description: "Between life and death there is a library, and within that library, the shelves go on forever. Every book provides a chance to try another life you could have lived.",
		Tags:        []string{"Fiction", "Fantasy", "Philosophical"},
	},
	{
		ID:          "2",
		Title:       "Atomic Habits",
		Author:      "James Clear",
		Price:       499,
		Rating:      4.9,
		CoverURL:    "https://picsum.photos/300/450?random=2",
		Description: "No matter your goals, Atomic Habits offers a proven framework for improving--every day.",
		Tags:        []string{"Self-Help", "Productivity", "Psychology"},
	},
	{
		ID:          "3",
		Title:       "Project Hail Mary",
		Author:      "Andy Weir",
		Price:       699,
		Rating:      4.9,
		CoverURL:    "https://picsum.photos/300/450?random=3",
		Description: "Ryland Grace is the sole survivor on a desperate, last-chance mission—and if he fails, humanity and the earth itself will perish.",
		Tags:        []string{"Sci-Fi", "Space", "Thriller"},
	},
	{
		ID:          "4",
		Title:       "The Song of Achilles",
		Author:      "Madeline Miller",
		Price:       450,
		Rating:      4.7,
		CoverURL:    "https://picsum.photos/300/450?random=4",
		Description: "A tale of gods, kings, immortal fame, and the human heart, The Song of Achilles is a dazzling literary feat.",
		Tags:        []string{"Historical Fiction", "Romance", "Mythology"},
	},
	{
		ID:          "5",
		Title:       "Dune",
		Author:      "Frank Herbert",
		Price:       599,
		Rating:      4.8,
		CoverURL:    "https://picsum.photos/300/450?random=5",
		Description: "Set on the desert planet Arrakis, Dune is the story of the boy Paul Atreides, heir to a noble family tasked with ruling an inhospitable world where the only thing of value is the 'spice' melange.",
		Tags:        []string{"Sci-Fi", "Classic", "Adventure"},
	},
	{
		ID:          "6",
		Title:       "Lessons in Chemistry",
		Author:      "Bonnie Garmus",
		Price:       550,
		Rating:      4.6,
		CoverURL:    "https://picsum.photos/300/450?random=6",
		Description: "Chemist Elizabeth Zott is not your average woman. In fact, Elizabeth Zott would be the first to point out that there is no such thing as an average woman.",
		Tags:        []string{"Fiction", "Historical", "Feminist"},
	},
	{
		ID:          "7",
		Title:       "Thinking, Fast and Slow",
		Author:      "Daniel Kahneman",
		Price:       499,
		Rating:      4.5,
		CoverURL:    "https://picsum.photos/300/450?random=7",
		Description: "The major work of the Nobel Prize winner, explaining the two systems that drive the way we think.",
		Tags:        []string{"Psychology", "Non-Fiction", "Science"},
	},
	{
		ID:          "8",
		Title:       "A Court of Thorns and Roses",
		Author:      "Sarah J. Maas",
		Price:       399,
		Rating:      4.4,
		CoverURL:    "https://picsum.photos/300/450?random=8",
		Description: "When nineteen-year-old huntress Feyre kills a wolf in the woods, a terrifying creature arrives to demand retribution.",
		Tags:        []string{"Fantasy", "Romance", "YA"},
	},
}

// Seed returns a fresh copy of the storefront's seed list.
func Seed() []domain.Book {
	return cloneBooks(seedBooks)
}
