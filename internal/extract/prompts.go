package extract

import "fmt"

// quoteInstructions is the fixed rubric the model follows when pulling
// quotes out of a transcript segment.
const quoteInstructions = `1. Analyze the transcript, video description, and any context provided.
2. Extract insightful, newsworthy quotes suitable for article use.
3. The user's timestamp is an anchor point. Find the complete conversational
   exchange (the full question and its full answer) that the anchor falls
   within, reading backwards from the anchor to the start of the exchange.
4. Use names, roles, or the video description to assign real speaker names;
   if unsure, use "Unknown Speaker". Keep names consistent across quotes.
5. In Q&A settings, extract both the full question and the full answer.
6. Quotes must be complete thoughts. If a statement starts or ends with a
   conjunction, include the adjacent sentences from the same speaker.
7. Combine uninterrupted statements from a single speaker into one quote.
8. Prioritize quotes revealing new insights, strong opinions, or stakes.
9. Do not include filler words, small talk, or incomplete fragments.
10. Format each quote as: Speaker Name: "The full quote."
11. Output only the formatted quotes, no introductions or explanations.
12. If a focus description is provided, it decides what is newsworthy.`

// QuotePrompt builds the per-moment extraction prompt.
func QuotePrompt(segment, clock, videoDescription, focus string) string {
	focusText := "No specific topic was provided. Use your judgment to find the most newsworthy quote."
	if focus != "" {
		focusText = fmt.Sprintf("The user is particularly interested in quotes related to: %q", focus)
	}
	if videoDescription == "" {
		videoDescription = "No description available."
	}
	return fmt.Sprintf(`You are a professional journalist extracting meaningful quotes for a news article. Your task is to:
%s

Context provided by the user (the most important input, if present):
%s

Video description (for overall context):
%s

Transcript segment (the user's point of interest is at or around %s):
---
%s
---
`, quoteInstructions, focusText, videoDescription, clock, segment)
}

// AnalysisPrompt builds the whole-transcript analysis prompt.
func AnalysisPrompt(transcript, question, videoDescription string) string {
	if videoDescription == "" {
		videoDescription = "No description available."
	}
	return fmt.Sprintf(`You are an expert analyst extracting insights from video content.

User's question:
%s

Video description (for context):
%s

Full transcript:
---
%s
---

Provide a thorough analysis addressing the user's question. Be specific,
cite relevant parts of the transcript, and give actionable insights where
appropriate.
`, question, videoDescription, transcript)
}
