package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// Responder produces the bot reply for one user message. Replies are either
// prose or a JSON document with a products, suppliers or error key.
type Responder interface {
	Respond(ctx context.Context, message string) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, message string) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

// HelpReply is returned for messages that match no catalog query.
const HelpReply = "I can help you find products and suppliers. Try \"Show me gaming products under $100\" or \"Which suppliers offer audio equipment?\""

var (
	maxPriceRe  = regexp.MustCompile(`(?:under|below|less than|cheaper than)\s*\$?(\d+(?:\.\d+)?)`)
	productIDRe = regexp.MustCompile(`product\s*(?:#|id\s*)(\d+)`)
)

var catalogCategories = []string{"electronics", "gaming", "accessories", "audio", "furniture", "office"}

// CatalogResponder answers keyword queries against the seeded catalog.
type CatalogResponder struct {
	db *gorm.DB
}

// NewCatalogResponder creates a CatalogResponder over db.
func NewCatalogResponder(db *gorm.DB) *CatalogResponder {
	return &CatalogResponder{db: db}
}

type productJSON struct {
	ID          uint    `json:"id"`
	Name        string  `json:"name"`
	Brand       string  `json:"brand"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	SupplierID  uint    `json:"supplier_id"`
}

type supplierJSON struct {
	ID                uint     `json:"id"`
	Name              string   `json:"name"`
	Email             string   `json:"email"`
	Phone             string   `json:"phone"`
	Address           string   `json:"address"`
	CategoriesOffered []string `json:"categories_offered"`
}

// Respond implements Responder.
func (r *CatalogResponder) Respond(ctx context.Context, message string) (string, error) {
	q := strings.ToLower(message)
	db := r.db.WithContext(ctx)

	if m := productIDRe.FindStringSubmatch(q); m != nil {
		return r.productDetails(db, m[1])
	}
	if strings.Contains(q, "supplier") || strings.Contains(q, "vendor") {
		return r.searchSuppliers(db, q)
	}
	if strings.Contains(q, "product") || strings.Contains(q, "show") || strings.Contains(q, "list") ||
		maxPriceRe.MatchString(q) || len(mentionedCategories(q)) > 0 {
		return r.searchProducts(db, q)
	}
	return HelpReply, nil
}

func (r *CatalogResponder) productDetails(db *gorm.DB, id string) (string, error) {
	var p CatalogProduct
	err := db.Where("id = ?", id).Limit(1).Find(&p).Error
	if err != nil {
		return "", fmt.Errorf("devserver: product %s: %w", id, err)
	}
	if p.ID == 0 {
		return encode(map[string]any{"error": fmt.Sprintf("Product with ID %s not found", id)})
	}
	return encode(map[string]any{"products": []productJSON{toProductJSON(p)}, "count": 1})
}

func (r *CatalogResponder) searchProducts(db *gorm.DB, q string) (string, error) {
	query := db.Model(&CatalogProduct{})
	if cats := mentionedCategories(q); len(cats) > 0 {
		query = query.Where("LOWER(category) IN ?", cats)
	}
	if brand := r.mentionedBrand(db, q); brand != "" {
		query = query.Where("brand = ?", brand)
	}
	if m := maxPriceRe.FindStringSubmatch(q); m != nil {
		if limit, err := strconv.ParseFloat(m[1], 64); err == nil {
			query = query.Where("price <= ?", limit)
		}
	}

	var rows []CatalogProduct
	if err := query.Order("price").Find(&rows).Error; err != nil {
		return "", fmt.Errorf("devserver: search products: %w", err)
	}
	out := make([]productJSON, 0, len(rows))
	for _, p := range rows {
		out = append(out, toProductJSON(p))
	}
	return encode(map[string]any{"products": out, "count": len(out)})
}

func (r *CatalogResponder) searchSuppliers(db *gorm.DB, q string) (string, error) {
	var rows []CatalogSupplier
	if err := db.Order("name").Find(&rows).Error; err != nil {
		return "", fmt.Errorf("devserver: search suppliers: %w", err)
	}

	cats := mentionedCategories(q)
	out := make([]supplierJSON, 0, len(rows))
	for _, s := range rows {
		offered := splitCategories(s.Categories)
		if len(cats) > 0 && !offersAny(offered, cats) {
			continue
		}
		out = append(out, supplierJSON{
			ID:                s.ID,
			Name:              s.Name,
			Email:             s.Email,
			Phone:             s.Phone,
			Address:           s.Address,
			CategoriesOffered: offered,
		})
	}
	if len(out) == 0 {
		return encode(map[string]any{"suppliers": out, "count": 0, "message": "No suppliers found matching your criteria."})
	}
	return encode(map[string]any{"suppliers": out, "count": len(out)})
}

// mentionedBrand returns the catalog brand named in q, if any.
func (r *CatalogResponder) mentionedBrand(db *gorm.DB, q string) string {
	var brands []string
	if err := db.Model(&CatalogProduct{}).Distinct().Pluck("brand", &brands).Error; err != nil {
		return ""
	}
	for _, b := range brands {
		if b != "" && strings.Contains(q, strings.ToLower(b)) {
			return b
		}
	}
	return ""
}

func mentionedCategories(q string) []string {
	var out []string
	for _, c := range catalogCategories {
		if strings.Contains(q, c) {
			out = append(out, c)
		}
	}
	return out
}

func offersAny(offered, wanted []string) bool {
	for _, o := range offered {
		for _, w := range wanted {
			if strings.EqualFold(o, w) {
				return true
			}
		}
	}
	return false
}

func splitCategories(s string) []string {
	out := []string{}
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func toProductJSON(p CatalogProduct) productJSON {
	return productJSON{
		ID:          p.ID,
		Name:        p.Name,
		Brand:       p.Brand,
		Price:       p.Price,
		Category:    p.Category,
		Description: p.Description,
		SupplierID:  p.SupplierID,
	}
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("devserver: encode reply: %w", err)
	}
	return string(b), nil
}

func seedSuppliers() []CatalogSupplier {
	return []CatalogSupplier{
		{ID: 1, Name: "TechMaster Supplies", Email: "sales@techmaster.test", Phone: "+1-555-0101", Address: "12 Circuit Ave, San Jose", Categories: "Electronics,Gaming,Accessories"},
		{ID: 2, Name: "GameZone Distributors", Email: "orders@gamezone.test", Phone: "+1-555-0102", Address: "88 Arcade St, Austin", Categories: "Gaming,Accessories"},
		{ID: 3, Name: "SoundWave Audio", Email: "hello@soundwave.test", Phone: "+1-555-0103", Address: "5 Harbor Rd, Seattle", Categories: "Audio,Electronics"},
		{ID: 4, Name: "Office Plus", Email: "contact@officeplus.test", Phone: "+1-555-0104", Address: "300 Market St, Chicago", Categories: "Furniture,Office"},
	}
}

func seedProducts() []CatalogProduct {
	return []CatalogProduct{
		{ID: 1, Name: "Gaming Mouse", Brand: "TechMaster", Price: 49.99, Category: "Gaming", Description: "RGB mouse with 16000 DPI sensor", SupplierID: 1},
		{ID: 2, Name: "Mechanical Keyboard", Brand: "TechMaster", Price: 89.99, Category: "Gaming", Description: "Hot-swappable switches, per-key lighting", SupplierID: 1},
		{ID: 3, Name: "USB-C Hub", Brand: "TechMaster", Price: 29.99, Category: "Accessories", Description: "7-in-1 hub with HDMI and card reader", SupplierID: 1},
		{ID: 4, Name: "Controller Charging Dock", Brand: "GameZone", Price: 24.99, Category: "Accessories", Description: "Charges two controllers at once", SupplierID: 2},
		{ID: 5, Name: "Gaming Headset", Brand: "GameZone", Price: 79.99, Category: "Gaming", Description: "7.1 surround sound with detachable mic", SupplierID: 2},
		{ID: 6, Name: "Wireless Earbuds", Brand: "SoundWave", Price: 59.99, Category: "Audio", Description: "Active noise cancellation, 24h battery", SupplierID: 3},
		{ID: 7, Name: "Bookshelf Speakers", Brand: "SoundWave", Price: 149.99, Category: "Audio", Description: "Pair of 50W powered speakers", SupplierID: 3},
		{ID: 8, Name: "4K Monitor", Brand: "TechMaster", Price: 329.99, Category: "Electronics", Description: "27-inch IPS panel", SupplierID: 1},
		{ID: 9, Name: "Ergonomic Chair", Brand: "Office Plus", Price: 249.99, Category: "Furniture", Description: "Adjustable lumbar support", SupplierID: 4},
		{ID: 10, Name: "Standing Desk", Brand: "Office Plus", Price: 399.99, Category: "Furniture", Description: "Electric height adjustment", SupplierID: 4},
	}
}
