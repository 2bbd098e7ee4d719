package pagedata

import (
	"encoding/json"
	"testing"
)

func TestParseAcceptsMixedScalars(t *testing.T) {
	raw := json.RawMessage(`{
		"url": "https://shop.example/p/1",
		"title": "Kettle",
		"domain": "shop.example",
		"pageType": "product",
		"products": [{"name": "Kettle", "price": 29.99, "rating": 4.5, "description": null}],
		"prices": ["$29.99", 31],
		"reviews": [{"text": "Boils fast", "rating": "5"}],
		"specifications": [{"name": "Volume", "value": 1.7}],
		"availability": {"inStock": true, "deliveryInfo": "Tomorrow"},
		"categories": ["Kitchen"],
		"images": [{"src": "a.png"}]
	}`)

	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p.Products[0].Price != "29.99" || p.Products[0].Rating != "4.5" {
		t.Fatalf("unexpected product: %+v", p.Products[0])
	}
	if p.Products[0].Description != "" {
		t.Fatalf("Description = %q, want empty", p.Products[0].Description)
	}
	if got := Strings(p.Prices); got[1] != "31" {
		t.Fatalf("Prices = %v", got)
	}
	if p.Specifications[0].Value != "1.7" {
		t.Fatalf("spec value = %q, want 1.7", p.Specifications[0].Value)
	}
	if p.Availability == nil || !p.Availability.InStock {
		t.Fatalf("availability = %+v", p.Availability)
	}
}

func TestParseNullIsAbsent(t *testing.T) {
	p, err := Parse(json.RawMessage(`null`))
	if err != nil || p != nil {
		t.Fatalf("Parse(null) = %v, %v; want nil, nil", p, err)
	}
}

func TestParseRejectsObjectScalar(t *testing.T) {
	if _, err := Parse(json.RawMessage(`{"products":[{"name":{"x":1}}]}`)); err == nil {
		t.Fatalf("Parse() expected error for object in scalar field")
	}
}
