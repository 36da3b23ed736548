package config

// DefaultDisclaimer is shown when the model does not supply one
const DefaultDisclaimer = "This is an educational explanation, not medical or financial advice. Please confirm coverage with your insurer."

// FooterNotice accompanies every presentation of results
const FooterNotice = "Educational Tool Only | Not Medical/Financial Advice"

// GetDefaultExplanationSystemPrompt returns a system prompt for explanation requests
func GetDefaultExplanationSystemPrompt() string {
	return `You explain hospital charges to people without medical training. Be accurate and calm. Never diagnose and never promise that a claim will be paid. Answer with JSON only.`
}
