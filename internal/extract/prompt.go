package extract

import (
	"fmt"
	"strings"
)

const promptTextBudget = 1500

const extractionPromptTemplate = `You are a Vision-First Price Extraction Agent.
Your Goal: Extract the main product price exactly as a human sees it on the screen.

**SOURCE OF TRUTH = IMAGE**
- The image provided is the **Absolute Truth**.
- The text provided below is scraped HTML content which may contain hidden/old prices.
- **IF IMAGE AND TEXT CONFLICT, TRUST THE IMAGE.**
- Only use the text if the image is completely unreadable or missing the price.

**PRICE EXTRACTION RULES (French Format):**
1. **Visual Focus**: Look for the largest, boldest price on the screen. This is usually the main product price.
2. **Ignore Small Text**: Ignore "Prix au litre", "Prix au kg", or small unit prices (e.g., "(4.60 € / L)").
3. **Ignore Strikethrough**: Do not extract crossed-out prices (old prices).
4. **Ignore "HT"**: Always find the "TTC" (Tax Included) price. If you see "1.15 € HT" and "1.38 €", the visual price is 1.38.
5. **Ignore "Suggestions"**: Do not extract prices from "Other customers bought" or "Recommended products" sections.

**Output Format Cleaning:**
- "3,99 €" -> 3.99
- "1 234,56 €" -> 1234.56
- "0.99 €" -> 0.99

**STOCK STATUS RULES:**
- Check the button color and text.
- Green/Blue "Ajouter au panier" -> true
- Grey/Red "Rupture", "Indisponible" -> false
- If in doubt, look for "En stock" text.

**CONFIDENCE SCORE:**
- 1.0: Price is clearly visible in the image and matches text.
- 0.9: Price is clearly visible in the image, even if text is missing.
- 0.5: Price found in Text ONLY (Image unclear).
- 0.0: No price found.

Respond ONLY with valid JSON:
{
  "price": <number or null>,
  "currency": "EUR",
  "in_stock": <true, false, or null>,
  "price_confidence": <0.0 to 1.0>,
  "in_stock_confidence": <0.0 to 1.0>,
  "source_type": "both"
}

%s`

const repairPromptTemplate = `Convert the following text into valid JSON matching this schema:

{
  "price": <number or null>,
  "currency": "<ISO currency code, default EUR>",
  "in_stock": <true, false, or null>,
  "price_confidence": <number from 0.0 to 1.0>,
  "in_stock_confidence": <number from 0.0 to 1.0>,
  "source_type": "<image, text, or both>"
}

Rules:
- Extract numeric price value only (no symbols)
- Boolean values must be true, false, or null (not strings)
- Confidence values must be numbers between 0.0 and 1.0
- Respond with ONLY the JSON object, no other text

Text to convert:
%s`

// BuildExtractionPrompt assembles the extraction prompt. The hint line
// carries a price an earlier stage spotted in the markup so the model can
// confirm rather than search.
func BuildExtractionPrompt(pageText, hint string) string {
	var context strings.Builder
	if hint != "" {
		fmt.Fprintf(&context, "PRIX DÉTECTÉ: %s\n\n", hint)
	}
	if filtered := FilterRelevantText(pageText, promptTextBudget); filtered != "" {
		context.WriteString("**Relevant text from page:**\n")
		context.WriteString(filtered)
	}
	return fmt.Sprintf(extractionPromptTemplate, context.String())
}

// BuildRepairPrompt asks the model to coerce a malformed reply into the
// schema. The raw output is capped so a runaway reply cannot blow up the
// repair call.
func BuildRepairPrompt(raw string) string {
	runes := []rune(raw)
	if len(runes) > 1000 {
		raw = string(runes[:1000])
	}
	return fmt.Sprintf(repairPromptTemplate, raw)
}

// relevantWords mark lines worth sending to the model.
var relevantWords = []string{
	"€", "eur", "prix", "price", "stock", "disponible", "indisponible",
	"rupture", "panier", "livraison", "ttc",
}

// FilterRelevantText keeps only the lines that plausibly talk about price or
// availability, within a rune budget.
func FilterRelevantText(text string, budget int) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var (
		sb   strings.Builder
		used int
	)
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < 3 {
			continue
		}
		lowered := strings.ToLower(trimmed)
		relevant := false
		for _, word := range relevantWords {
			if strings.Contains(lowered, word) {
				relevant = true
				break
			}
		}
		if !relevant {
			continue
		}
		count := len([]rune(trimmed)) + 1
		if used+count > budget {
			break
		}
		sb.WriteString(trimmed)
		sb.WriteByte('\n')
		used += count
	}
	return strings.TrimRight(sb.String(), "\n")
}
