package generator

import (
	"fmt"
	"time"

	"github.com/DeafMist/crm-spotlight/backend/internal/models"
)

// SearchPrompt builds the news search instruction for the [start, end] window.
func SearchPrompt(start, end time.Time) string {
	return fmt.Sprintf(`Search the web for news published between %s and %s about CRM software vendors
(Salesforce, HubSpot, Microsoft Dynamics 365, Zoho, Oracle, SAP, Pipedrive, Freshworks and similar).
Return ONLY a JSON array. Each element must be an object with the fields:
"title" (string), "summary" (two sentences), "source" (publication name),
"category" (one of "Product Launch", "Acquisition", "Funding", "Partnership", "Earnings", "AI", "Other"),
"relevanceScore" (number from 1 to 10) and "url" (the direct link to the article).
Only cite articles you found in the search results. Do not invent links.`,
		start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"))
}

// InsightPrompt builds the analyst annotation instruction for item.
func InsightPrompt(item models.NewsItem) string {
	return fmt.Sprintf(`You are a CRM industry analyst. In at most two sentences, explain why this news matters
to CRM buyers and competitors. Answer with plain text only.

Title: %s
Source: %s
Summary: %s`, item.Title, item.Source, item.Summary)
}
