package aiclassifier

import (
	"fmt"
	"strings"
)

const classifySystemPrompt = "You are a bank statement transaction classifier.\n\n" +
	"Task:\n" +
	"- Classify EVERY transaction in the input JSON array.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
	"- Output a JSON array with one object per input transaction.\n\n" +
	"Each object must have these fields:\n" +
	"- \"index\": number, copied from the input\n" +
	"- \"category\": string (one of the allowed categories)\n" +
	"- \"subcategory\": string or empty\n" +
	"- \"normalizedMerchant\": string, the merchant's common brand name\n" +
	"- \"confidence\": number from 0 to 100\n" +
	"- \"reasoning\": string, one short sentence\n" +
	"- \"anomaly\": null, or an object {\"severity\": \"low\"|\"medium\"|\"high\", \"description\": string, \"recommendation\": string}\n\n"

const classifyRules = "Rules:\n" +
	"- \"merchantHint\" and \"categoryHint\" come from rules and may be wrong.\n" +
	"- \"type\" is \"debit\" for money out and \"credit\" for money in; amounts are unsigned.\n" +
	"- Only flag an anomaly when the transaction is genuinely unusual.\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Output must begin with \"[\" and end with \"]\".\n"

const summarySystemPrompt = "You write short summaries of a bank statement for its owner. " +
	"Use two or three plain sentences, no lists, no Markdown. " +
	"Mention the most important spending pattern and one concrete suggestion. " +
	"Only use figures present in the input."

func classifyPrompt(categories []string, bankType, currency string) string {
	var b strings.Builder
	b.WriteString(classifySystemPrompt)
	b.WriteString("Allowed categories:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "  - %s\n", c)
	}
	b.WriteString("\n")
	if bankType != "" {
		fmt.Fprintf(&b, "Bank: %s\n", bankType)
	}
	if currency != "" {
		fmt.Fprintf(&b, "Currency: %s\n", currency)
	}
	b.WriteString("\n")
	b.WriteString(classifyRules)
	return b.String()
}
