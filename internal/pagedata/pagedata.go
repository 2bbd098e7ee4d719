// Package pagedata models the record produced by the page scanner.
package pagedata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// PageData is the scanner's extraction of a page's commerce-relevant content.
type PageData struct {
	URL            string          `json:"url,omitempty"`
	Title          string          `json:"title,omitempty"`
	Description    string          `json:"description,omitempty"`
	Content        string          `json:"content,omitempty"`
	Domain         string          `json:"domain,omitempty"`
	PageType       string          `json:"pageType,omitempty"`
	Timestamp      int64           `json:"timestamp,omitempty"`
	Products       []Product       `json:"products,omitempty"`
	Prices         []Text          `json:"prices,omitempty"`
	Images         json.RawMessage `json:"images,omitempty"`
	Reviews        []Review        `json:"reviews,omitempty"`
	Categories     []Text          `json:"categories,omitempty"`
	Specifications []Specification `json:"specifications,omitempty"`
	Availability   *Availability   `json:"availability,omitempty"`
	Seller         *Seller         `json:"seller,omitempty"`
}

type Product struct {
	Name        Text `json:"name"`
	Price       Text `json:"price,omitempty"`
	Image       Text `json:"image,omitempty"`
	Description Text `json:"description,omitempty"`
	Rating      Text `json:"rating,omitempty"`
	Link        Text `json:"link,omitempty"`
}

type Review struct {
	Text   Text `json:"text"`
	Rating Text `json:"rating,omitempty"`
}

type Specification struct {
	Name  Text `json:"name"`
	Value Text `json:"value"`
}

type Availability struct {
	InStock      bool `json:"inStock"`
	StockLevel   Text `json:"stockLevel,omitempty"`
	DeliveryInfo Text `json:"deliveryInfo,omitempty"`
	ShippingInfo Text `json:"shippingInfo,omitempty"`
}

type Seller struct {
	Name         Text `json:"name,omitempty"`
	Rating       Text `json:"rating,omitempty"`
	Location     Text `json:"location,omitempty"`
	ReturnPolicy Text `json:"returnPolicy,omitempty"`
}

// Text is a scalar the scanner may emit as a string, number, bool or null.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	case 't', 'f':
		v, err := strconv.ParseBool(string(b))
		if err != nil {
			return fmt.Errorf("invalid text value %s", b)
		}
		*t = Text(strconv.FormatBool(v))
		return nil
	case '{', '[':
		return fmt.Errorf("invalid text value: expected scalar, got %s", b[:1])
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*t = Text(n.String())
		return nil
	}
}

func (t Text) String() string { return string(t) }

// Strings converts a Text slice for joining.
func Strings(in []Text) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

// Parse decodes a raw page-data record.
func Parse(raw json.RawMessage) (*PageData, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var p PageData
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode page data: %w", err)
	}
	return &p, nil
}
