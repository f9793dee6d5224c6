// Package datasource is the read-only lookup backend for resolved tickets.
// It serves orders, products and users from a JSON catalog file; the action
// bound to each intent in the schema decides which collection is queried.
package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/extractor"
	"github.com/spec-kit/support-engine/internal/intents"
)

// Order is one fulfillment record.
type Order struct {
	OrderID      string `json:"order_id"`
	Status       string `json:"status"`
	Tracking     string `json:"tracking,omitempty"`
	DeliveryDate string `json:"delivery_date,omitempty"`
}

// Product is one catalog record.
type Product struct {
	ProductName string   `json:"product_name"`
	Aliases     []string `json:"aliases,omitempty"`
	Stock       int      `json:"stock"`
	Price       string   `json:"price,omitempty"`
	Description string   `json:"description,omitempty"`
}

// User is one account record.
type User struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Catalog is the parsed JSON data file.
type Catalog struct {
	Orders   []Order   `json:"orders"`
	Products []Product `json:"products"`
	Users    []User    `json:"users"`
}

// Store resolves completed tickets against the catalog.
type Store struct {
	catalog Catalog
	schema  *intents.Schema
}

// Load reads the catalog file and binds it to the intent schema.
func Load(path string, schema *intents.Schema) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var catalog Catalog
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewStore(catalog, schema), nil
}

// NewStore builds a store over an in-memory catalog.
func NewStore(catalog Catalog, schema *intents.Schema) *Store {
	return &Store{catalog: catalog, schema: schema}
}

// ExtractorProducts exposes the catalog in the shape the entity extractor
// consumes.
func (s *Store) ExtractorProducts() []extractor.Product {
	products := make([]extractor.Product, 0, len(s.catalog.Products))
	for _, p := range s.catalog.Products {
		products = append(products, extractor.Product{Name: p.ProductName, Aliases: p.Aliases})
	}
	return products
}

// Lookup resolves an intent with a complete field set against the catalog.
func (s *Store) Lookup(_ context.Context, intent string, fields map[string]string) (domain.LookupResult, error) {
	action, ok := s.schema.Action(intent)
	if !ok {
		return domain.LookupResult{Outcome: domain.LookupNotFound}, nil
	}
	switch action {
	case "lookup_order":
		return s.lookupOrder(fields["order_id"]), nil
	case "check_stock", "product_info":
		return s.lookupProduct(fields["product_name"]), nil
	case "trigger_reset":
		return s.lookupUser(fields["email"]), nil
	default:
		return domain.LookupResult{}, fmt.Errorf("unsupported action %q for intent %q", action, intent)
	}
}

func (s *Store) lookupOrder(orderID string) domain.LookupResult {
	if !validOrderID(orderID) {
		return domain.LookupResult{Outcome: domain.LookupInvalidKey}
	}
	key := strings.TrimPrefix(orderID, "#")
	for _, order := range s.catalog.Orders {
		if strings.EqualFold(strings.TrimPrefix(order.OrderID, "#"), key) {
			return domain.LookupResult{Outcome: domain.LookupFound, Record: map[string]any{
				"order_id":      order.OrderID,
				"status":        order.Status,
				"tracking":      order.Tracking,
				"delivery_date": order.DeliveryDate,
			}}
		}
	}
	return domain.LookupResult{Outcome: domain.LookupNotFound}
}

func (s *Store) lookupProduct(name string) domain.LookupResult {
	for _, product := range s.catalog.Products {
		if strings.EqualFold(product.ProductName, name) {
			return domain.LookupResult{Outcome: domain.LookupFound, Record: map[string]any{
				"product_name": product.ProductName,
				"stock":        product.Stock,
				"price":        product.Price,
				"description":  product.Description,
			}}
		}
	}
	return domain.LookupResult{Outcome: domain.LookupNotFound}
}

func (s *Store) lookupUser(email string) domain.LookupResult {
	for _, user := range s.catalog.Users {
		if strings.EqualFold(user.Email, email) {
			return domain.LookupResult{Outcome: domain.LookupFound, Record: map[string]any{
				"email": user.Email,
				"name":  user.Name,
			}}
		}
	}
	return domain.LookupResult{Outcome: domain.LookupNotFound}
}

// validOrderID accepts "#12345", "ORD-123", bare digits, and alphanumeric
// ids of 4+ characters containing at least one digit.
func validOrderID(orderID string) bool {
	if orderID == "" {
		return false
	}
	if strings.HasPrefix(orderID, "#") || strings.HasPrefix(strings.ToUpper(orderID), "ORD-") {
		return true
	}
	digits := 0
	for _, r := range orderID {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits == len(orderID) {
		return true
	}
	return len(orderID) >= 4 && digits > 0
}
