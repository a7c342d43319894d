package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type openAPIDoc struct {
	Paths      map[string]map[string]any `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Nullable   bool              `yaml:"nullable"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
	Enum       []string          `yaml:"enum"`
}

// field describes one property a contract schema must declare.
type field struct {
	Name     string
	Type     string
	Required bool
	Nullable bool
	ItemsRef string
}

type contract struct {
	Schema string
	Fields []field
}

func ref(name string) string { return "#/components/schemas/" + name }

// contracts mirrors the JSON the storefront actually writes.
var contracts = []contract{
	{Schema: "ErrorResponse", Fields: []field{
		{Name: "error", Type: "string", Required: true},
		{Name: "code", Type: "string", Required: true},
		{Name: "requestId", Type: "string"},
	}},
	{Schema: "Book", Fields: []field{
		{Name: "id", Type: "string", Required: true},
		{Name: "title", Type: "string", Required: true},
		{Name: "author", Type: "string", Required: true},
		{Name: "price", Type: "number", Required: true},
		{Name: "rating", Type: "number", Required: true},
		{Name: "coverUrl", Type: "string", Required: true},
		{Name: "description", Type: "string", Required: true},
		{Name: "tags", Type: "array", Required: true},
	}},
	{Schema: "Recommendation", Fields: []field{
		{Name: "bookId", Type: "string", Required: true},
		{Name: "reason", Type: "string", Required: true},
	}},
	{Schema: "RecommendationResult", Fields: []field{
		{Name: "recommendations", Type: "array", Required: true, ItemsRef: ref("Recommendation")},
		{Name: "message", Type: "string", Required: true},
	}},
	{Schema: "SearchState", Fields: []field{
		{Name: "query", Type: "string", Required: true},
		{Name: "isSearching", Type: "boolean", Required: true},
		{Name: "results", Type: "array", Required: true, Nullable: true},
		{Name: "aiMessage", Type: "string", Required: true, Nullable: true},
	}},
	{Schema: "SearchView", Fields: []field{
		{Name: "books", Type: "array", Required: true, ItemsRef: ref("Book")},
		{Name: "recommendations", Type: "array", Required: true, ItemsRef: ref("Recommendation")},
		{Name: "stale", Type: "boolean", Required: true},
	}},
	{Schema: "CartLine", Fields: []field{
		{Name: "id", Type: "string", Required: true},
		{Name: "quantity", Type: "integer", Required: true},
	}},
	{Schema: "Cart", Fields: []field{
		{Name: "items", Type: "array", Required: true, ItemsRef: ref("CartLine")},
		{Name: "open", Type: "boolean", Required: true},
		{Name: "subtotal", Type: "number", Required: true},
		{Name: "itemCount", Type: "integer", Required: true},
	}},
	{Schema: "Receipt", Fields: []field{
		{Name: "message", Type: "string", Required: true},
		{Name: "orderId", Type: "string"},
		{Name: "items", Type: "array", Required: true, ItemsRef: ref("CartLine")},
		{Name: "subtotal", Type: "number", Required: true},
		{Name: "itemCount", Type: "integer", Required: true},
	}},
	{Schema: "Order", Fields: []field{
		{Name: "id", Type: "string", Required: true},
		{Name: "items", Type: "array", Required: true, ItemsRef: ref("OrderItem")},
		{Name: "subtotal", Type: "number", Required: true},
		{Name: "itemCount", Type: "integer", Required: true},
		{Name: "status", Type: "string", Required: true},
		{Name: "errorMessage", Type: "string"},
		{Name: "attempts", Type: "integer", Required: true},
	}},
}

var requiredPaths = map[string][]string{
	"/healthz":             {"get"},
	"/api/books":           {"get"},
	"/api/books/{id}":      {"get"},
	"/api/search":          {"get", "post", "delete"},
	"/api/cart":            {"get", "patch"},
	"/api/cart/items":      {"post"},
	"/api/cart/items/{id}": {"patch", "delete"},
	"/api/cart/checkout":   {"post"},
	"/api/orders/{id}":     {"get"},
}

var errorCodes = []string{
	"BOOK_NOT_FOUND",
	"CART_EMPTY",
	"CART_INVALID_REQUEST",
	"ORDER_NOT_FOUND",
	"RATE_LIMITED",
	"SEARCH_IN_FLIGHT",
	"SEARCH_QUERY_REQUIRED",
	"SESSION_NOT_FOUND",
	"SYSTEM_INTERNAL_ERROR",
	"SYSTEM_METHOD_NOT_ALLOWED",
	"SYSTEM_NOT_FOUND",
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if err := check(doc); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func check(doc openAPIDoc) error {
	var errs []error
	for _, c := range contracts {
		s, err := getSchema(doc, c.Schema)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, validateContract(c, s))
	}
	errs = append(errs, validatePaths(doc), validateErrorCodes(doc))
	return errors.Join(errs...)
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateContract(c contract, s schema) error {
	if s.Type != "object" {
		return fmt.Errorf("%s must be object", c.Schema)
	}
	required := makeSet(s.Required)
	for _, f := range c.Fields {
		prop, ok := s.Properties[f.Name]
		if !ok {
			return fmt.Errorf("%s.%s missing", c.Schema, f.Name)
		}
		if prop.Type != f.Type {
			return fmt.Errorf("%s.%s must be %s, got %q", c.Schema, f.Name, f.Type, prop.Type)
		}
		if f.Required && !required[f.Name] {
			return fmt.Errorf("%s.required must include %q", c.Schema, f.Name)
		}
		if f.Nullable && !prop.Nullable {
			return fmt.Errorf("%s.%s must be nullable", c.Schema, f.Name)
		}
		if f.ItemsRef != "" && (prop.Items == nil || strings.TrimSpace(prop.Items.Ref) != f.ItemsRef) {
			return fmt.Errorf("%s.%s.items must reference %s", c.Schema, f.Name, f.ItemsRef)
		}
	}
	return nil
}

func validatePaths(doc openAPIDoc) error {
	paths := make([]string, 0, len(requiredPaths))
	for p := range requiredPaths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		ops, ok := doc.Paths[p]
		if !ok {
			return fmt.Errorf("path %s missing", p)
		}
		for _, method := range requiredPaths[p] {
			if _, ok := ops[method]; !ok {
				return fmt.Errorf("path %s missing %s operation", p, strings.ToUpper(method))
			}
		}
	}
	return nil
}

func validateErrorCodes(doc openAPIDoc) error {
	s, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		return nil
	}
	declared := makeSet(s.Properties["code"].Enum)
	if len(declared) == 0 {
		return errors.New("ErrorResponse.code must enumerate the error codes")
	}
	for _, code := range errorCodes {
		if !declared[code] {
			return fmt.Errorf("ErrorResponse.code enum missing %s", code)
		}
	}
	if len(declared) != len(errorCodes) {
		return fmt.Errorf("ErrorResponse.code enum has %d codes, want %d", len(declared), len(errorCodes))
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
