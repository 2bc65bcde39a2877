// ABOUTME: Locale-tagged phrase tables driving the resolution tiers
// ABOUTME: Plain configuration data; new locales are additive, not code branches

package resolver

// ExactAnswer maps a canonical phrase to a canned factual answer. Keeping
// these out of the model path avoids hallucinated numbers on the most common
// factual questions.
type ExactAnswer struct {
	Phrase string `yaml:"phrase"`
	Answer string `yaml:"answer"`
}

// LocalePack bundles the fixed phrase sets for one language. The resolver
// scans every configured pack on each request; the utterance language is not
// known up front.
type LocalePack struct {
	Locale             string        `yaml:"locale"`
	Greeting           string        `yaml:"greeting"`
	ExactAnswers       []ExactAnswer `yaml:"exact_answers"`
	StatsKeywords      []string      `yaml:"stats_keywords"`
	ComparisonKeywords []string      `yaml:"comparison_keywords"`
	FallbackPhrases    []string      `yaml:"fallback_phrases"`
}

const (
	answerPopulation = "According to World Population Review, the global population in 2024 is approximately 8.1 billion people."
	answerCountries  = "There are 195 countries in the world, according to UN data. This includes 193 UN member states and 2 observer states: Vatican City and Palestine."
)

// DefaultLocalePacks returns the built-in English and Romanian phrase tables.
// Config may replace or extend these.
func DefaultLocalePacks() []LocalePack {
	return []LocalePack{
		{
			Locale:   "en",
			Greeting: "Hello! How can I help you today?",
			ExactAnswers: []ExactAnswer{
				{Phrase: "global population", Answer: answerPopulation},
				{Phrase: "world population", Answer: answerPopulation},
				{Phrase: "how many countries", Answer: answerCountries},
			},
			StatsKeywords:      []string{"how many", "number", "population", "exact", "total", "count"},
			ComparisonKeywords: []string{"compare", "difference", "versus", "vs", "between"},
			FallbackPhrases:    []string{"cannot", "don't know", "unknown"},
		},
		{
			Locale:   "ro",
			Greeting: "Bună ziua! Cu ce vă pot ajuta?",
			ExactAnswers: []ExactAnswer{
				{Phrase: "populatia globului", Answer: answerPopulation},
				{Phrase: "cati oameni", Answer: answerPopulation},
				{Phrase: "cate tari", Answer: answerCountries},
			},
			StatsKeywords:      []string{"cati", "cate", "numar", "cifra", "populatie", "exacta"},
			ComparisonKeywords: []string{"compara", "diferenta", "versus", "fata de"},
			FallbackPhrases:    []string{"nu pot", "nu am", "nu știu", "nu stiu"},
		},
	}
}

// GreetingFor returns the greeting of the pack matching locale, falling back
// to the first pack when the locale is unknown.
func GreetingFor(packs []LocalePack, locale string) string {
	for _, pack := range packs {
		if pack.Locale == locale {
			return pack.Greeting
		}
	}
	if len(packs) > 0 {
		return packs[0].Greeting
	}
	return ""
}
