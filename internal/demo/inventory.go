// Package demo is a small in-memory inventory library exposed by the CLI as
// the "inventory" root.
package demo

import (
	"cmp"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/skosovsky/autotool/hints"
	"github.com/skosovsky/autotool/reflectprovider"
)

// Root is the root identifier the demo library is registered under.
const Root = "inventory"

//go:embed inventory.yaml
var hintsYAML []byte

// Hints returns the bundled hint document for Root.
func Hints() (*hints.HintFile, error) {
	return hints.ParseYAML(hintsYAML)
}

var ErrNotFound = errors.New("not found")

type Item struct {
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Qty       int       `json:"qty"`
	Tags      []string  `json:"tags,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Order struct {
	ID       string `json:"id"`
	SKU      string `json:"sku"`
	Qty      int    `json:"qty"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

// Report is produced asynchronously by Reports.ExportStock.
type Report struct {
	Format string `json:"format"`
	Lines  int    `json:"lines"`
	Body   string `json:"body"`
}

type ListItemsArgs struct {
	Query    string `json:"query,omitempty" description:"Substring matched against item names"`
	Page     int    `json:"page" default:"1" description:"1-based page number"`
	PageSize int    `json:"pageSize" default:"20"`
}

type CreateItemArgs struct {
	SKU  string   `json:"sku" description:"Stock keeping unit, unique"`
	Name string   `json:"name"`
	Qty  int      `json:"qty" default:"0"`
	Tags []string `json:"tags,omitempty"`
}

type store struct {
	mu     sync.RWMutex
	items  map[string]Item
	orders map[string]Order
	seq    int
}

// Inventory is the root namespace.
type Inventory struct {
	Catalog *Catalog
	Orders  *Orders
	Reports *Reports

	st *store
}

// New returns an Inventory seeded with a few items.
func New() *Inventory {
	st := &store{items: map[string]Item{}, orders: map[string]Order{}}
	now := time.Now().UTC()
	for _, it := range []Item{
		{SKU: "bolt-m6", Name: "M6 bolt", Qty: 500, Tags: []string{"hardware"}},
		{SKU: "nut-m6", Name: "M6 nut", Qty: 800, Tags: []string{"hardware"}},
		{SKU: "drill-18v", Name: "18V cordless drill", Qty: 12, Tags: []string{"tools", "power"}},
	} {
		it.UpdatedAt = now
		st.items[it.SKU] = it
	}
	inv := &Inventory{st: st, Catalog: &Catalog{st: st}, Reports: &Reports{st: st}}
	inv.Orders = &Orders{st: st, customer: "guest"}
	return inv
}

// Summary reports item and order counts.
func (inv *Inventory) Summary() map[string]int {
	inv.st.mu.RLock()
	defer inv.st.mu.RUnlock()
	return map[string]int{"items": len(inv.st.items), "orders": len(inv.st.orders)}
}

type Catalog struct{ st *store }

func (c *Catalog) ListItems(_ context.Context, args *ListItemsArgs) []Item {
	c.st.mu.RLock()
	defer c.st.mu.RUnlock()
	var out []Item
	for _, it := range c.st.items {
		if args.Query == "" || strings.Contains(strings.ToLower(it.Name), strings.ToLower(args.Query)) {
			out = append(out, it)
		}
	}
	slices.SortFunc(out, func(a, b Item) int { return strings.Compare(a.SKU, b.SKU) })
	size := max(args.PageSize, 1)
	start := min(max(args.Page-1, 0)*size, len(out))
	return out[start:min(start+size, len(out))]
}

func (c *Catalog) GetItem(sku string) (Item, error) {
	c.st.mu.RLock()
	defer c.st.mu.RUnlock()
	it, ok := c.st.items[sku]
	if !ok {
		return Item{}, fmt.Errorf("item %s: %w", sku, ErrNotFound)
	}
	return it, nil
}

func (c *Catalog) SearchItems(tag string) []Item {
	c.st.mu.RLock()
	defer c.st.mu.RUnlock()
	var out []Item
	for _, it := range c.st.items {
		if slices.Contains(it.Tags, tag) {
			out = append(out, it)
		}
	}
	slices.SortFunc(out, func(a, b Item) int { return strings.Compare(a.SKU, b.SKU) })
	return out
}

func (c *Catalog) CreateItem(_ context.Context, args *CreateItemArgs) (Item, error) {
	if args.SKU == "" {
		return Item{}, errors.New("sku is required")
	}
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	if _, ok := c.st.items[args.SKU]; ok {
		return Item{}, fmt.Errorf("item %s already exists", args.SKU)
	}
	it := Item{SKU: args.SKU, Name: args.Name, Qty: args.Qty, Tags: args.Tags, UpdatedAt: time.Now().UTC()}
	c.st.items[it.SKU] = it
	return it, nil
}

func (c *Catalog) UpdateStock(sku string, delta int) (Item, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	it, ok := c.st.items[sku]
	if !ok {
		return Item{}, fmt.Errorf("item %s: %w", sku, ErrNotFound)
	}
	if it.Qty+delta < 0 {
		return Item{}, fmt.Errorf("item %s: only %d in stock", sku, it.Qty)
	}
	it.Qty += delta
	it.UpdatedAt = time.Now().UTC()
	c.st.items[sku] = it
	return it, nil
}

func (c *Catalog) DeleteItem(sku string) error {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	if _, ok := c.st.items[sku]; !ok {
		return fmt.Errorf("item %s: %w", sku, ErrNotFound)
	}
	delete(c.st.items, sku)
	return nil
}

// Orders acts on behalf of a customer taken from the auth configuration.
type Orders struct {
	st       *store
	customer string
}

func (o *Orders) PlaceOrder(sku string, qty int) (Order, error) {
	if qty <= 0 {
		return Order{}, errors.New("qty must be positive")
	}
	o.st.mu.Lock()
	defer o.st.mu.Unlock()
	it, ok := o.st.items[sku]
	if !ok {
		return Order{}, fmt.Errorf("item %s: %w", sku, ErrNotFound)
	}
	if it.Qty < qty {
		return Order{}, fmt.Errorf("item %s: only %d in stock", sku, it.Qty)
	}
	it.Qty -= qty
	o.st.items[sku] = it
	o.st.seq++
	ord := Order{ID: fmt.Sprintf("ord-%04d", o.st.seq), SKU: sku, Qty: qty, Customer: o.customer, Status: "placed"}
	o.st.orders[ord.ID] = ord
	return ord, nil
}

func (o *Orders) ListOrders() []Order {
	o.st.mu.RLock()
	defer o.st.mu.RUnlock()
	var out []Order
	for _, ord := range o.st.orders {
		if ord.Customer == o.customer {
			out = append(out, ord)
		}
	}
	slices.SortFunc(out, func(a, b Order) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (o *Orders) CancelOrder(id string) (Order, error) {
	o.st.mu.Lock()
	defer o.st.mu.Unlock()
	ord, ok := o.st.orders[id]
	if !ok || ord.Customer != o.customer {
		return Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if ord.Status == "canceled" {
		return ord, nil
	}
	ord.Status = "canceled"
	o.st.orders[id] = ord
	if it, ok := o.st.items[ord.SKU]; ok {
		it.Qty += ord.Qty
		o.st.items[ord.SKU] = it
	}
	return ord, nil
}

type Reports struct{ st *store }

// ExportStock renders the stock table in the background.
func (r *Reports) ExportStock(format string) <-chan Report {
	ch := make(chan Report, 1)
	go func() {
		defer close(ch)
		r.st.mu.RLock()
		items := make([]Item, 0, len(r.st.items))
		for _, it := range r.st.items {
			items = append(items, it)
		}
		r.st.mu.RUnlock()
		slices.SortFunc(items, func(a, b Item) int { return strings.Compare(a.SKU, b.SKU) })

		var b strings.Builder
		sep := ","
		if format == "tsv" {
			sep = "\t"
		}
		b.WriteString("sku" + sep + "qty\n")
		for _, it := range items {
			fmt.Fprintf(&b, "%s%s%d\n", it.SKU, sep, it.Qty)
		}
		ch <- Report{Format: cmp.Or(format, "csv"), Lines: len(items) + 1, Body: b.String()}
	}()
	return ch
}

// Register exposes inv on p under Root. The Orders handle is rebuilt per auth
// configuration with the "customer" key.
func Register(p *reflectprovider.Provider, inv *Inventory) error {
	return p.Register(Root, inv,
		reflectprovider.WithDocs(map[string]string{
			"Inventory.Summary":   "Count items and orders.",
			"Catalog.ListItems":   "List catalog items, optionally filtered by name, one page at a time.",
			"Catalog.GetItem":     "Get one item by SKU.",
			"Catalog.SearchItems": "Find items carrying a tag.",
			"Catalog.CreateItem":  "Create a catalog item.",
			"Catalog.UpdateStock": "Add delta (may be negative) to an item's stock.",
			"Catalog.DeleteItem":  "Delete an item from the catalog.",
			"Orders.PlaceOrder":   "Place an order, reserving stock.",
			"Orders.ListOrders":   "List the current customer's orders.",
			"Orders.CancelOrder":  "Cancel an order and release its stock.",
			"Reports.ExportStock": "Export the stock table as csv or tsv.",
		}),
		reflectprovider.WithParamNames("Catalog.GetItem", "sku"),
		reflectprovider.WithParamNames("Catalog.SearchItems", "tag"),
		reflectprovider.WithParamNames("Catalog.UpdateStock", "sku", "delta"),
		reflectprovider.WithParamNames("Catalog.DeleteItem", "sku"),
		reflectprovider.WithParamNames("Orders.PlaceOrder", "sku", "qty"),
		reflectprovider.WithParamNames("Orders.CancelOrder", "id"),
		reflectprovider.WithParamNames("Reports.ExportStock", "format"),
		reflectprovider.WithConstructor("Orders", func(_ context.Context, auth map[string]any) (any, error) {
			customer, _ := auth["customer"].(string)
			if customer == "" {
				customer = "guest"
			}
			return &Orders{st: inv.st, customer: customer}, nil
		}),
	)
}
