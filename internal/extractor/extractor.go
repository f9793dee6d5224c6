// Package extractor pulls structured field values out of free text using
// strict regexes plus a catalog lookup for product names.
package extractor

import (
	"context"
	"regexp"
	"strings"
)

// Product is a catalog entry the extractor can recognize in text.
type Product struct {
	Name    string
	Aliases []string
}

// Regex extracts order ids, email addresses and product names. Absent keys
// in the result mean "not found"; the extractor never guesses.
type Regex struct {
	products []Product
}

// NewRegex builds an extractor over the product catalog.
func NewRegex(products []Product) *Regex {
	return &Regex{products: products}
}

var (
	// Labeled ids first: "#12345", "Order: 12345", "ref ORD-459".
	labeledOrderID = regexp.MustCompile(`(?i)(?:#|order\s*:?\s*|id\s*:?\s*|ref\s*:?\s*)([A-Z0-9-]{4,})`)
	orderIDShape   = regexp.MustCompile(`(?i)^[A-Z0-9-]+$`)
	emailPattern   = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)
)

// Extract scans text for exactly the requested fields.
func (r *Regex) Extract(_ context.Context, text string, fields []string) (map[string]string, error) {
	found := map[string]string{}
	for _, field := range fields {
		var value string
		switch field {
		case "order_id":
			value = extractOrderID(text)
		case "email":
			value = emailPattern.FindString(text)
		case "product_name":
			value = r.extractProduct(text)
		}
		if value != "" {
			found[field] = value
		}
	}
	return found, nil
}

func extractOrderID(text string) string {
	if match := labeledOrderID.FindStringSubmatch(text); match != nil {
		return match[1]
	}
	// Standalone tokens must contain a digit so plain words never match.
	for _, token := range strings.Fields(text) {
		token = strings.Trim(token, ".,?!")
		if len(token) < 4 || !containsDigit(token) {
			continue
		}
		if orderIDShape.MatchString(token) {
			return token
		}
	}
	return ""
}

func (r *Regex) extractProduct(text string) string {
	lower := " " + strings.ToLower(text) + " "
	for _, product := range r.products {
		if strings.Contains(lower, strings.ToLower(product.Name)) {
			return product.Name
		}
		for _, alias := range product.Aliases {
			if strings.Contains(lower, strings.ToLower(alias)) {
				return product.Name
			}
		}
	}
	return ""
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
