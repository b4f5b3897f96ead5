package extract

import (
	"regexp"
	"strings"
)

const months = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

// Date patterns only cover explicit day-month-year, numeric and relative
// weekday forms. A bare month name ("in October") is not a date here.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b` + months + `\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?` + months + `,?\s+\d{4}\b`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
	regexp.MustCompile(`(?i)\b(?:next|this|coming)\s+(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
}

var (
	currencyPattern = regexp.MustCompile(`\$\d{1,3}(?:,\d{3})+(?:\.\d{2})?|\$\d+(?:\.\d{2})?(?:[kK]\b)?`)
	attendeePattern = regexp.MustCompile(`(?i)\b(\d[\d,]*)\s+(?:people|attendees|guests|participants)\b`)
	wordPattern     = regexp.MustCompile(`[a-z']+`)
)

var positiveWords = map[string]bool{
	"love": true, "loved": true, "great": true, "perfect": true, "excellent": true,
	"amazing": true, "wonderful": true, "happy": true, "excited": true, "good": true,
	"fantastic": true, "awesome": true, "beautiful": true, "thanks": true, "glad": true,
}

var negativeWords = map[string]bool{
	"hate": true, "bad": true, "terrible": true, "awful": true, "disappointed": true,
	"unhappy": true, "worried": true, "concerned": true, "frustrated": true,
	"problem": true, "expensive": true, "dislike": true, "annoyed": true, "poor": true,
}

// Deterministic extracts dates, budget mentions, attendee counts and a
// keyword sentiment from text using fixed patterns.
func Deterministic(text string) *Extraction {
	ex := &Extraction{
		Preferences: map[string]any{},
		Sentiment:   keywordSentiment(text),
		Stage:       StagePatterns,
	}

	seen := map[string]bool{}
	for _, re := range datePatterns {
		for _, m := range re.FindAllString(text, -1) {
			if !seen[m] {
				seen[m] = true
				ex.Entities.Dates = append(ex.Entities.Dates, m)
			}
		}
	}
	if len(ex.Entities.Dates) > 0 {
		ex.Preferences["date"] = ex.Entities.Dates[0]
	}

	if m := currencyPattern.FindString(text); m != "" {
		ex.Preferences["budget"] = m
	}

	for _, m := range attendeePattern.FindAllStringSubmatch(text, -1) {
		ex.Requirements = append(ex.Requirements, "Attendee count: "+strings.ReplaceAll(m[1], ",", ""))
	}

	return ex
}

// keywordSentiment tallies positive and negative words; ties are neutral.
func keywordSentiment(text string) Sentiment {
	var pos, neg int
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		switch {
		case positiveWords[w]:
			pos++
		case negativeWords[w]:
			neg++
		}
	}
	switch {
	case pos > neg:
		return SentimentPositive
	case neg > pos:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}
