// Package demo holds the modules the ssrrun command renders.
package demo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/on-the-ground/effect_ive_ssr/effects"
	"github.com/on-the-ground/effect_ive_ssr/router"
	sharedHelper "github.com/on-the-ground/effect_ive_ssr/shared/helper"
)

const (
	CatalogModuleName = "catalog"

	// SourceToken is the provider token of the catalog's Source.
	SourceToken = "demo.catalog.source"

	FetchProductsActionType        = "fetchProducts"
	FetchRecommendationsActionType = "fetchRecommendations"
	setProductsActionType          = "setProducts"
	setRecommendationsActionType   = "setRecommendations"
)

var ErrNoSource = errors.New("no catalog source provided")

// Request is what the demo renders for.
type Request struct {
	Path    string
	User    string
	History router.History
}

type Product struct {
	SKU   string  `json:"sku"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type Catalog struct {
	Category        string    `json:"category"`
	Products        []Product `json:"products"`
	Recommendations []Product `json:"recommendations,omitempty"`
}

// Source serves products. Stale results ask the client to refetch.
type Source interface {
	Products(ctx context.Context, category string) (products []Product, stale bool, err error)
	Recommendations(ctx context.Context, user string) ([]Product, error)
}

// NewCatalogModule declares the catalog. Products load for the category in
// the request path; recommendations only load for a signed-in user.
func NewCatalogModule() *effects.Module[Catalog] {
	return effects.NewModule(CatalogModuleName, Catalog{}).
		Reducer(setProductsActionType, func(c Catalog, p any) Catalog {
			page := p.(Catalog)
			c.Category = page.Category
			c.Products = page.Products
			return c
		}).
		Reducer(setRecommendationsActionType, func(c Catalog, p any) Catalog {
			c.Recommendations = p.([]Product)
			return c
		}).
		Effect(FetchProductsActionType, fetchProducts).
		Effect(FetchRecommendationsActionType, fetchRecommendations).
		SSR(FetchProductsActionType, func(ctx context.Context, req any) (any, error) {
			r, err := request(req)
			if err != nil {
				return nil, err
			}
			return categoryOf(r.Path), nil
		}).
		SSR(FetchRecommendationsActionType, func(ctx context.Context, req any) (any, error) {
			r, err := request(req)
			if err != nil {
				return nil, err
			}
			if r.User == "" {
				return nil, effects.ErrSkip
			}
			return r.User, nil
		})
}

// NewRouterModule is the router with its history taken from the request.
func NewRouterModule() *effects.Module[router.State] {
	return router.NewModule().
		SSR(router.SetHistoryActionType, func(ctx context.Context, req any) (any, error) {
			r, err := request(req)
			if err != nil {
				return nil, err
			}
			if r.History == nil {
				return nil, effects.ErrSkip
			}
			return r.History, nil
		})
}

// Descriptors lists the demo modules in render order.
func Descriptors() []effects.Descriptor {
	return []effects.Descriptor{NewRouterModule(), NewCatalogModule()}
}

func request(req any) (Request, error) {
	return sharedHelper.GetTypedValueOf[Request](func() (any, error) {
		return req, nil
	})
}

func categoryOf(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "featured"
	}
	return strings.SplitN(path, "/", 2)[0]
}

func source(ec effects.EffectContext[Catalog]) (Source, error) {
	src, ok := sharedHelper.GetTypedValueOf2[Source](func() (any, bool) {
		return ec.Lookup(SourceToken)
	})
	if !ok {
		return nil, ErrNoSource
	}
	return src, nil
}

func fetchProducts(ctx context.Context, ec effects.EffectContext[Catalog], payload any) error {
	src, err := source(ec)
	if err != nil {
		return err
	}
	category := payload.(string)
	products, stale, err := src.Products(ctx, category)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", category, err)
	}
	ec.Emit(effects.Action{Type: setProductsActionType, Payload: Catalog{Category: category, Products: products}})
	if stale {
		ec.Retry(FetchProductsActionType)
	}
	return nil
}

func fetchRecommendations(ctx context.Context, ec effects.EffectContext[Catalog], payload any) error {
	src, err := source(ec)
	if err != nil {
		return err
	}
	products, err := src.Recommendations(ctx, payload.(string))
	if err != nil {
		return fmt.Errorf("fetch recommendations: %w", err)
	}
	ec.Emit(effects.Action{Type: setRecommendationsActionType, Payload: products})
	return nil
}

// MemorySource is a Source over a fixed inventory.
type MemorySource struct {
	mu         sync.RWMutex
	byCategory map[string][]Product
	stale      map[string]bool
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		byCategory: map[string][]Product{
			"featured": {
				{SKU: "kb-01", Name: "Split keyboard", Price: 189},
				{SKU: "ms-02", Name: "Trackball", Price: 79},
			},
			"audio": {
				{SKU: "hp-10", Name: "Closed-back headphones", Price: 249},
				{SKU: "dac-3", Name: "USB DAC", Price: 119},
			},
		},
		stale: map[string]bool{"audio": true},
	}
}

func (s *MemorySource) Products(ctx context.Context, category string) ([]Product, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Product(nil), s.byCategory[category]...), s.stale[category], nil
}

// Recommendations returns the cheapest products across all categories.
func (s *MemorySource) Recommendations(ctx context.Context, _ string) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []Product
	for _, ps := range s.byCategory {
		all = append(all, ps...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Price < all[j].Price })
	return all[:min(2, len(all))], nil
}
