package prompts

import "strings"

// Disclaimer is the fixed text every analysis must carry.
const Disclaimer = "This is an AI-generated analysis and has low credibility. " +
	"It should not be used for final medical decisions without verification by a qualified healthcare professional."

// PrescriptionAnalysisSystemMessage frames the model's role for providers that
// accept a separate system message.
const PrescriptionAnalysisSystemMessage = "You are a highly accurate medical transcription and clinical analysis assistant. " +
	"You always reply with a single valid JSON object and nothing else."

var prescriptionAnalysis = buildPrescriptionAnalysisPrompt()

// PrescriptionAnalysis returns the instruction sent with every prescription image.
func PrescriptionAnalysis() string {
	return prescriptionAnalysis
}

func buildPrescriptionAnalysisPrompt() string {
	var prompt strings.Builder

	prompt.WriteString("# Prescription Analysis\n\n")
	prompt.WriteString("Analyze the attached prescription image.\n\n")

	prompt.WriteString("## Step 1: Readability\n\n")
	prompt.WriteString("First, assess the readability of the handwriting.\n")
	prompt.WriteString("If the handwriting is completely unreadable or illegible, or the image is too blurry to analyze, ")
	prompt.WriteString("return ONLY the following JSON object:\n\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{"error": "UNREADABLE", "message": "The prescription is unreadable."}`)
	prompt.WriteString("\n```\n\n")

	prompt.WriteString("## Step 2: Analysis\n\n")
	prompt.WriteString("Otherwise, if the image is readable:\n")
	prompt.WriteString("1. Identify every drug listed.\n")
	prompt.WriteString("2. Extract its dosage and frequency.\n")
	prompt.WriteString("3. Analyze the drug combination for interactions.\n")
	prompt.WriteString("4. Classify the overall risk as \"Low\", \"Moderate\", or \"High\".\n")
	prompt.WriteString("5. Provide a concise summary of the critical interaction.\n")
	prompt.WriteString("6. List actionable recommendations for the clinician.\n")
	prompt.WriteString("7. If risk is \"Moderate\" or \"High\", suggest a safer alternative prescription. ")
	prompt.WriteString("If risk is \"Low\", set alternativePrescription to null.\n")
	prompt.WriteString("8. Include the fixed disclaimer exactly as written below.\n\n")

	prompt.WriteString("## Response Format\n\n")
	prompt.WriteString("Return ONLY a single, valid JSON object with this structure:\n\n")
	prompt.WriteString("```json\n")
	prompt.WriteString("{\n")
	prompt.WriteString(`  "riskLevel": "Low | Moderate | High",` + "\n")
	prompt.WriteString(`  "summary": "...",` + "\n")
	prompt.WriteString(`  "recommendations": ["...", "..."],` + "\n")
	prompt.WriteString(`  "extractedDrugs": [{"name": "...", "dosage": "...", "frequency": "..."}],` + "\n")
	prompt.WriteString(`  "alternativePrescription": {"summary": "...", "drugs": [{"name": "...", "dosage": "...", "frequency": "..."}]},` + "\n")
	prompt.WriteString(`  "disclaimer": "` + Disclaimer + `"` + "\n")
	prompt.WriteString("}\n")
	prompt.WriteString("```\n")

	return prompt.String()
}
