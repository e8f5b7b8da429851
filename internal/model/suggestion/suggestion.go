package suggestion

// Suggestion is a canned prompt offered while a conversation is still empty.
type Suggestion struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Icon     string `json:"icon"`
	Gradient string `json:"gradient"`
}

// Seed provides the starter prompts shown on an empty chat.
func Seed() []Suggestion {
	return []Suggestion{
		{
			ID:       "dynamic-programming",
			Text:     "Explain Dynamic Programming concepts",
			Icon:     "code",
			Gradient: "from-blue-500 to-purple-600",
		},
		{
			ID:       "faang-mock-interview",
			Text:     "Mock interview questions for FAANG",
			Icon:     "briefcase",
			Gradient: "from-green-500 to-teal-600",
		},
		{
			ID:       "data-structures-resources",
			Text:     "Best resources for Data Structures",
			Icon:     "graduation-cap",
			Gradient: "from-orange-500 to-red-600",
		},
		{
			ID:       "system-design-tips",
			Text:     "Tips for system design interviews",
			Icon:     "lightbulb",
			Gradient: "from-pink-500 to-rose-600",
		},
	}
}
