package aiclient

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ent0n29/pagelens/internal/pagedata"
)

func TestChatSystemPromptBoundsPageData(t *testing.T) {
	page := &pagedata.PageData{
		URL:      "https://shop.example/kettles",
		Domain:   "shop.example",
		PageType: "category",
		Title:    "Kettles",
		Reviews:  []pagedata.Review{{Text: pagedata.Text(strings.Repeat("r", 400))}, {Text: "second"}},
		Availability: &pagedata.Availability{
			InStock:      true,
			DeliveryInfo: "Next day",
		},
	}
	for i := 0; i < 6; i++ {
		page.Products = append(page.Products, pagedata.Product{
			Name:        pagedata.Text(fmt.Sprintf("Product-%d", i)),
			Price:       "$10",
			Rating:      "4.2",
			Description: pagedata.Text(strings.Repeat("d", 500)),
		})
		page.Specifications = append(page.Specifications, pagedata.Specification{Name: pagedata.Text(fmt.Sprintf("Spec-%d", i)), Value: "v"})
		page.Categories = append(page.Categories, pagedata.Text(fmt.Sprintf("Cat-%d", i)))
	}
	for i := 0; i < 8; i++ {
		page.Prices = append(page.Prices, pagedata.Text(fmt.Sprintf("$%d", i)))
	}

	prompt := chatSystemPrompt(page)

	if !strings.Contains(prompt, "Products found (6):") {
		t.Fatalf("prompt missing product count: %s", prompt)
	}
	if strings.Contains(prompt, "Product-3") {
		t.Fatalf("prompt should include at most 3 products")
	}
	if !strings.Contains(prompt, "Description: "+strings.Repeat("d", 200)+"\n") {
		t.Fatalf("product description should be truncated to 200 chars")
	}
	if !strings.Contains(prompt, "Prices detected: $0, $1, $2, $3, $4\n") {
		t.Fatalf("prompt should include the first 5 prices: %s", prompt)
	}
	if !strings.Contains(prompt, "Reviews found: 2 reviews available") {
		t.Fatalf("prompt missing review count")
	}
	if !strings.Contains(prompt, `Sample review: "`+strings.Repeat("r", 150)+`..."`) {
		t.Fatalf("review sample should be truncated to 150 chars")
	}
	if strings.Contains(prompt, "Spec-5") || !strings.Contains(prompt, "- Spec-4: v") {
		t.Fatalf("prompt should include exactly 5 specifications")
	}
	if !strings.Contains(prompt, "Availability: In Stock\nDelivery: Next day") {
		t.Fatalf("prompt missing availability")
	}
	if !strings.Contains(prompt, "Categories: Cat-0, Cat-1, Cat-2\n") {
		t.Fatalf("prompt should include 3 categories: %s", prompt)
	}
}

func TestChatSystemPromptWithoutPage(t *testing.T) {
	prompt := chatSystemPrompt(nil)
	for _, want := range []string{"- URL: Unknown", "- Domain: Unknown", "- Title: Unknown"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestAnalysisPromptIsUntruncated(t *testing.T) {
	long := strings.Repeat("x", 1000)
	prompt := analysisPrompt(&pagedata.PageData{
		URL:        "https://x",
		Products:   []pagedata.Product{{Name: "A", Description: pagedata.Text(long)}},
		Categories: []pagedata.Text{"a", "b", "c", "d"},
	})
	if !strings.Contains(prompt, long) {
		t.Fatalf("analysis prompt should carry the full description")
	}
	if !strings.Contains(prompt, "Categories: a, b, c, d") {
		t.Fatalf("analysis prompt should carry all categories")
	}
	if !strings.Contains(prompt, "Prices: None") {
		t.Fatalf("analysis prompt should render empty prices as None")
	}
}

func TestUnfence(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n[1]\n```":           "[1]",
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range cases {
		if got := unfence(in); got != want {
			t.Fatalf("unfence(%q) = %q, want %q", in, got, want)
		}
	}
}
