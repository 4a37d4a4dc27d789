package generate

// Prompt templates for the two generation modes. Both demand a bare JSON
// object so the response survives parseRecord even when the model wraps it
// in a markdown code fence.

const newsPromptTemplate = `You design tiny event cards for a life-simulation game.
Turn the following news item into one playable event.

NEWS:
Title: %s
Summary: %s

REQUIREMENTS:
- "title": a punchy event name, at most 10 characters
- "description": what happens to the player, at most 50 characters
- "options": 2 or 3 choices; each has "text" (at most 15 characters) and
  "effects", a JSON object mapping attribute names (e.g. "cash", "mood",
  "health", "reputation") to numeric deltas
- "min_rank" and "max_rank": the eligible player tier window, drawn from
  %s, with min_rank not above max_rank; center the window on "%s"
- the event must be playable without having read the news item

Respond with exactly one JSON object, no commentary.`

const creativePromptTemplate = `You design tiny event cards for a life-simulation game.
Invent one original "%s" event. Do not reference real news.

REQUIREMENTS:
- "title": a punchy event name, at most 10 characters
- "description": what happens to the player, at most 50 characters
- "options": 2 or 3 choices; each has "text" (at most 15 characters) and
  "effects", a JSON object mapping attribute names (e.g. "cash", "mood",
  "health", "reputation") to numeric deltas
- "min_rank" and "max_rank": the eligible player tier window, drawn from
  %s, with min_rank not above max_rank; center the window on "%s"

Respond with exactly one JSON object, no commentary.`

// eventTypeTags is the fixed vocabulary creative mode samples from.
var eventTypeTags = []string{
	"opportunity",
	"crisis",
	"encounter",
	"windfall",
	"dilemma",
}
