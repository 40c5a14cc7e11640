// Package prompts holds the oracle prompt templates in every supported
// language. Templates use {name} placeholders filled by the render helpers
// so they stay copy-paste comparable with the model playground.
package prompts

import "strings"

// Language selects a prompt set.
type Language string

const (
	English  Language = "en"
	Japanese Language = "ja"
)

// Normalize maps arbitrary config input to a supported language,
// defaulting to English.
func Normalize(s string) Language {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ja", "jp", "japanese":
		return Japanese
	default:
		return English
	}
}

type set struct {
	unifiedAnalysis string
	knowledgeModel  string
	intentAnalysis  string
	retrievedCtx    string
}

var sets = map[Language]set{
	English: {
		unifiedAnalysis: unifiedAnalysisEN,
		knowledgeModel:  knowledgeModelEN,
		intentAnalysis:  intentAnalysisEN,
		retrievedCtx:    retrievedContextEN,
	},
	Japanese: {
		unifiedAnalysis: unifiedAnalysisJA,
		knowledgeModel:  knowledgeModelJA,
		intentAnalysis:  intentAnalysisJA,
		retrievedCtx:    retrievedContextJA,
	},
}

func forLang(lang Language) set {
	if s, ok := sets[lang]; ok {
		return s
	}
	return sets[English]
}

// UnifiedAnalysis renders the store/update decision prompt for one
// interaction against its similar existing documents.
func UnifiedAnalysis(lang Language, userInput, agentOutput, existingDocs string) string {
	return strings.NewReplacer(
		"{user_input}", userInput,
		"{agent_output}", agentOutput,
		"{existing_docs}", existingDocs,
	).Replace(forLang(lang).unifiedAnalysis)
}

// KnowledgeModel renders the structuring prompt that distills raw analysis
// text into a minimal structural model.
func KnowledgeModel(lang Language, context string) string {
	return strings.Replace(forLang(lang).knowledgeModel, "{context}", context, 1)
}

// IntentAnalysis renders the query-planning prompt used when recalling
// memories for a new user request.
func IntentAnalysis(lang Language, userInput, history string) string {
	return strings.NewReplacer(
		"{user_input}", userInput,
		"{history_txt}", history,
	).Replace(forLang(lang).intentAnalysis)
}

// RetrievedContext wraps recalled documents for injection into a
// conversation.
func RetrievedContext(lang Language, contextStr string) string {
	return strings.Replace(forLang(lang).retrievedCtx, "{context_str}", contextStr, 1)
}
