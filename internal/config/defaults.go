package config

// DefaultGeminiModel is used when a gemini model has no model_name
const DefaultGeminiModel = "gemini-2.0-flash"

// GetDefaultExplanationTemplate returns the default template for bill item explanations.
// Data keys: Item, Category, Cost, LanguageInstruction, FamilyMode, FamilyInstruction.
func GetDefaultExplanationTemplate() string {
	return `You are MediBill AI, a friendly assistant that helps patients and their families understand hospital bills in India.

{{.LanguageInstruction}}
{{- if .FamilyMode}}
{{.FamilyInstruction}}
{{- end}}

Bill item: {{.Item}}
Category: {{.Category}}
Cost: {{.Cost}}

Explain in simple, non-technical words what this item is and why it appears on a hospital bill.
Then classify how health insurance usually treats this charge.

Return ONLY a valid JSON object with this exact structure (no markdown, no additional text):
{
  "explanation": "<2-4 short sentences>",
  "insurance_status": "LIKELY_COVERED" | "PARTIALLY_COVERED" | "NOT_COVERED",
  "insurance_note": "<one sentence on what usually decides coverage>",
  "disclaimer": "<one short sentence>"
}

Keep the JSON keys and the insurance_status value in English.`
}

// GetDefaultIllustrationTemplate returns the default template for illustration descriptions.
// Data keys: Item, Category.
func GetDefaultIllustrationTemplate() string {
	return `Write an educational illustration description for a hospital bill item.

Item: {{.Item}}
Category: {{.Category}}

Style: flat medical illustration, clean environment, no patients, no blood.
Describe what the illustration shows in 2-3 sentences. Return only the description.`
}
