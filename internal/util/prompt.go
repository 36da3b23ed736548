package util

import (
	"strings"

	"github.com/lamim/medibill/pkg/models"
)

// FamilyModeInstruction is appended to prompts when family mode is on
const FamilyModeInstruction = "Use warm, reassuring language suitable for worried family members. Avoid alarming medical jargon."

// LanguageInstruction tells the model which language and script to answer in
func LanguageInstruction(lang models.Language) string {
	instruction := "Language: " + string(lang) + "."
	switch lang {
	case models.LanguageHindi:
		instruction += " (Devanagari script)."
	case models.LanguageBengali:
		instruction += " (Bengali script)."
	}
	return instruction
}

// ParseLanguage matches s against the supported languages, case-insensitively.
// An empty string selects English.
func ParseLanguage(s string) (models.Language, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.LanguageEnglish, true
	}
	for _, lang := range models.Languages {
		if strings.EqualFold(string(lang), s) {
			return lang, true
		}
	}
	return "", false
}
