// Package classify decides how a bot reply is rendered. Classification is
// pure: the same content always yields the same Payload.
package classify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Kind tags a Payload.
type Kind int

const (
	PlainText Kind = iota
	ProductList
	SupplierList
	StructuredError
)

func (k Kind) String() string {
	switch k {
	case ProductList:
		return "products"
	case SupplierList:
		return "suppliers"
	case StructuredError:
		return "error"
	default:
		return "text"
	}
}

// ID is an identifier the backend may send as a number or a string.
type ID string

// UnmarshalJSON accepts 12 as well as "prod-012".
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Price is a product price the backend may send as a number, a numeric
// string ("19.99", "$19.99") or null.
type Price float64

// UnmarshalJSON accepts 19.99, "19.99" and null.
func (p *Price) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*p = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*p = Price(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if s == "" {
		*p = 0
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return fmt.Errorf("price %q: %w", s, err)
	}
	*p = Price(f)
	return nil
}

// Product is one entry of a product list reply.
type Product struct {
	ID          ID      `json:"id,omitempty"`
	Name        string  `json:"name"`
	Brand       string  `json:"brand"`
	Price       Price   `json:"price"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	SupplierID  ID      `json:"supplier_id,omitempty"`
}

// Supplier is one entry of a supplier list reply.
type Supplier struct {
	ID                ID       `json:"id,omitempty"`
	Name              string   `json:"name"`
	Email             string   `json:"email"`
	Phone             string   `json:"phone"`
	Address           string   `json:"address"`
	Contact           string   `json:"contact"`
	CategoriesOffered []string `json:"categories_offered"`
}

// Payload is the classified form of a reply. Only the field matching Kind
// is meaningful.
type Payload struct {
	Kind      Kind
	Text      string
	Products  []Product
	Suppliers []Supplier
	Error     string
}

// Classify parses raw as JSON and picks, in order, a products array, a
// suppliers array or an error field. Anything else, including malformed
// JSON and JSON of no known shape, is plain text.
func Classify(raw string) Payload {
	plain := Payload{Kind: PlainText, Text: raw}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return plain
	}

	if v, ok := present(obj, "products"); ok {
		var products []Product
		if err := json.Unmarshal(v, &products); err != nil {
			return plain
		}
		return Payload{Kind: ProductList, Products: nonNil(products)}
	}
	if v, ok := present(obj, "suppliers"); ok {
		var suppliers []Supplier
		if err := json.Unmarshal(v, &suppliers); err != nil {
			return plain
		}
		return Payload{Kind: SupplierList, Suppliers: nonNil(suppliers)}
	}
	if v, ok := present(obj, "error"); ok {
		var msg string
		if err := json.Unmarshal(v, &msg); err != nil {
			msg = string(v)
		}
		return Payload{Kind: StructuredError, Error: msg}
	}
	return plain
}

// present returns obj[key] when it is set to a truthy JSON value: not
// null, false, 0 or "".
func present(obj map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := obj[key]
	if !ok {
		return nil, false
	}
	v = bytes.TrimSpace(v)
	switch string(v) {
	case "null", "false", `""`:
		return nil, false
	}
	var n float64
	if err := json.Unmarshal(v, &n); err == nil && n == 0 {
		return nil, false
	}
	return v, true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// MaxMemoEntries bounds a Memo. A full Memo starts over empty.
const MaxMemoEntries = 512

// Memo caches classifications by content.
type Memo struct {
	mu sync.Mutex
	m  map[string]Payload
}

// Classify returns the cached Payload for raw, computing it on first use.
func (c *Memo) Classify(raw string) Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.m[raw]; ok {
		return p
	}
	if c.m == nil || len(c.m) >= MaxMemoEntries {
		c.m = make(map[string]Payload)
	}
	p := Classify(raw)
	c.m[raw] = p
	return p
}

// Reset drops every cached entry.
func (c *Memo) Reset() {
	c.mu.Lock()
	c.m = nil
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Memo) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
