package aiclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/ent0n29/pagelens/internal/pagedata"
)

const (
	historyWindow          = 6
	maxPromptProducts      = 3
	maxPromptPrices        = 5
	maxPromptSpecs         = 5
	maxPromptCategories    = 3
	productDescriptionCap  = 200
	reviewSampleCap        = 150
	analysisFallbackPrefix = 200
)

const (
	analysisSystemInstruction = "You are an AI assistant analyzing web pages to provide helpful recommendations and insights. Be concise and actionable."
	similarSystemInstruction  = "You are a product research assistant. Provide realistic product alternatives with helpful insights."
)

// buildChatMessages assembles system prompt, the trailing history window and
// the new user message, in that order.
func buildChatMessages(userMessage string, page *pagedata.PageData, history []ChatMessage) []completionMessage {
	recent := lo.Slice(history, len(history)-historyWindow, len(history))
	messages := make([]completionMessage, 0, len(recent)+2)
	messages = append(messages, completionMessage{Role: "system", Content: chatSystemPrompt(page)})
	messages = append(messages, lo.Map(recent, func(m ChatMessage, _ int) completionMessage {
		return completionMessage{Role: m.Role(), Content: m.Content}
	})...)
	messages = append(messages, completionMessage{Role: "user", Content: userMessage})
	return messages
}

func chatSystemPrompt(page *pagedata.PageData) string {
	if page == nil {
		page = &pagedata.PageData{}
	}
	var b strings.Builder
	b.WriteString("You are an AI assistant helping users understand and analyze web pages. You have access to information from the current web page they're viewing.\n\n")
	b.WriteString("Current page information:\n")
	fmt.Fprintf(&b, "- URL: %s\n", orUnknown(page.URL))
	fmt.Fprintf(&b, "- Domain: %s\n", orUnknown(page.Domain))
	fmt.Fprintf(&b, "- Page Type: %s\n", orUnknown(page.PageType))
	fmt.Fprintf(&b, "- Title: %s", orUnknown(page.Title))

	if len(page.Products) > 0 {
		fmt.Fprintf(&b, "\n\nProducts found (%d):", len(page.Products))
		for i, p := range lo.Slice(page.Products, 0, maxPromptProducts) {
			fmt.Fprintf(&b, "\n%d. %s", i+1, p.Name)
			if p.Price != "" {
				fmt.Fprintf(&b, " - %s", p.Price)
			}
			if p.Rating != "" {
				fmt.Fprintf(&b, " (Rating: %s)", p.Rating)
			}
			if p.Description != "" {
				fmt.Fprintf(&b, "\n   Description: %s", truncate(string(p.Description), productDescriptionCap))
			}
		}
	}

	if len(page.Prices) > 0 {
		prices := pagedata.Strings(lo.Slice(page.Prices, 0, maxPromptPrices))
		fmt.Fprintf(&b, "\n\nPrices detected: %s", strings.Join(prices, ", "))
	}

	if len(page.Reviews) > 0 {
		fmt.Fprintf(&b, "\n\nReviews found: %d reviews available", len(page.Reviews))
		if sample := string(page.Reviews[0].Text); sample != "" {
			fmt.Fprintf(&b, "\nSample review: \"%s...\"", truncate(sample, reviewSampleCap))
		}
	}

	if len(page.Specifications) > 0 {
		fmt.Fprintf(&b, "\n\nSpecifications (%d):", len(page.Specifications))
		for _, spec := range lo.Slice(page.Specifications, 0, maxPromptSpecs) {
			fmt.Fprintf(&b, "\n- %s: %s", spec.Name, spec.Value)
		}
	}

	if page.Availability != nil {
		stock := "Out of Stock"
		if page.Availability.InStock {
			stock = "In Stock"
		}
		fmt.Fprintf(&b, "\n\nAvailability: %s", stock)
		if page.Availability.DeliveryInfo != "" {
			fmt.Fprintf(&b, "\nDelivery: %s", page.Availability.DeliveryInfo)
		}
	}

	if len(page.Categories) > 0 {
		categories := pagedata.Strings(lo.Slice(page.Categories, 0, maxPromptCategories))
		fmt.Fprintf(&b, "\n\nCategories: %s", strings.Join(categories, ", "))
	}

	b.WriteString("\n\nPlease help the user with their questions about this page/content. Be helpful, friendly, and provide specific insights based on the available data. If they ask about comparisons, prices, features, or recommendations, use the information provided. Keep responses concise but informative.")
	return b.String()
}

// analysisPrompt embeds the untruncated page fields.
func analysisPrompt(page *pagedata.PageData) string {
	if page == nil {
		page = &pagedata.PageData{}
	}
	products := page.Products
	if products == nil {
		products = []pagedata.Product{}
	}
	productsJSON, err := json.Marshal(products)
	if err != nil {
		productsJSON = []byte("[]")
	}

	var b strings.Builder
	b.WriteString("Analyze this webpage data and provide insights:\n\n")
	fmt.Fprintf(&b, "URL: %s\n", page.URL)
	fmt.Fprintf(&b, "Title: %s\n", page.Title)
	fmt.Fprintf(&b, "Description: %s\n", page.Description)
	fmt.Fprintf(&b, "Products: %s\n", productsJSON)
	fmt.Fprintf(&b, "Prices: %s\n", joinOrNone(page.Prices))
	fmt.Fprintf(&b, "Categories: %s\n\n", joinOrNone(page.Categories))
	b.WriteString("Provide:\n")
	b.WriteString("1. Product insights and recommendations\n")
	b.WriteString("2. Price analysis\n")
	b.WriteString("3. Similar product suggestions\n")
	b.WriteString("4. Buying advice\n\n")
	b.WriteString("Format as JSON with sections: insights, recommendations, similar_products, advice")
	return b.String()
}

func similarProductsPrompt(product pagedata.Product) string {
	return fmt.Sprintf("Based on this product: \"%s\" with price %s, suggest 3 similar or alternative products that might be better value or quality. Include product names, estimated prices, and brief reasons why they're good alternatives.\n\nFormat as JSON array with objects containing: name, price, reason",
		string(product.Name), orUnknown(string(product.Price)))
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func joinOrNone(items []pagedata.Text) string {
	joined := strings.Join(pagedata.Strings(items), ", ")
	if joined == "" {
		return "None"
	}
	return joined
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
