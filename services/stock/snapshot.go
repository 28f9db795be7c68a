// Package stock exposes the read side of the vaccine inventory: a
// summary endpoint computed from the persisted entities and a JSON
// snapshot document refreshed after each stock sync.
package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"clinicsync-backend/lib/clinicstore"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("clinicsync.services.stock")

// SnapshotItem is one vaccine as rendered in the snapshot document and
// the stock endpoint.
type SnapshotItem struct {
	Name             string  `json:"name"`
	Laboratory       string  `json:"laboratory"`
	CurrentStock     int     `json:"current_stock"`
	AvailableStock   int     `json:"available_stock"`
	MinStock         int     `json:"min_stock"`
	PurchasePrice    float64 `json:"purchase_price"`
	SalePrice        float64 `json:"sale_price"`
	UnitMargin       float64 `json:"unit_margin"`
	InventoryValue   float64 `json:"inventory_value"`
	PotentialRevenue float64 `json:"potential_revenue"`
	MinAgeMonths     int     `json:"min_age_months"`
	MaxAgeMonths     int     `json:"max_age_months"`
	StatusText       string  `json:"status_text"`
}

// Snapshot is the document written to disk and served to readers.
type Snapshot struct {
	Items       []SnapshotItem `json:"items"`
	LastUpdated string         `json:"last_updated"` // ISO-8601 UTC
	Source      string         `json:"source"`
	TotalItems  int            `json:"total_items"`
}

// Summary aggregates the whole inventory for the dashboard header.
type Summary struct {
	TotalItems       int     `json:"total_items"`
	ItemsOut         int     `json:"items_out"`
	ItemsLow         int     `json:"items_low"`
	InventoryValue   float64 `json:"inventory_value"`
	PotentialRevenue float64 `json:"potential_revenue"`
}

func itemFromVaccine(v clinicstore.Vaccine) SnapshotItem {
	item := SnapshotItem{
		Name:             v.Name,
		Laboratory:       v.Laboratory,
		CurrentStock:     v.CurrentStock,
		AvailableStock:   v.AvailableStock,
		MinStock:         v.MinimumStock,
		PurchasePrice:    v.PurchasePrice,
		SalePrice:        v.SalePrice,
		UnitMargin:       round2(v.SalePrice - v.PurchasePrice),
		InventoryValue:   round2(float64(v.CurrentStock) * v.PurchasePrice),
		PotentialRevenue: round2(float64(v.AvailableStock) * v.SalePrice),
		MinAgeMonths:     v.MinAgeMonths,
		MaxAgeMonths:     v.MaxAgeMonths,
	}
	switch {
	case v.CurrentStock <= 0:
		item.StatusText = "Esgotado"
	case v.CurrentStock < v.MinimumStock:
		item.StatusText = fmt.Sprintf("Estoque Baixo (%d unidades)", v.CurrentStock)
	default:
		item.StatusText = fmt.Sprintf("Disponível (%d unidades)", v.CurrentStock)
	}
	return item
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func summarize(items []SnapshotItem) Summary {
	s := Summary{TotalItems: len(items)}
	for _, item := range items {
		s.InventoryValue = round2(s.InventoryValue + item.InventoryValue)
		s.PotentialRevenue = round2(s.PotentialRevenue + item.PotentialRevenue)
		switch {
		case item.CurrentStock == 0:
			s.ItemsOut++
		case item.CurrentStock < item.MinStock:
			s.ItemsLow++
		}
	}
	return s
}

// Snapshotter builds and persists snapshot documents from the store.
type Snapshotter struct {
	store *clinicstore.Store
	path  string
}

func NewSnapshotter(store *clinicstore.Store, path string) *Snapshotter {
	return &Snapshotter{store: store, path: path}
}

func (s *Snapshotter) build(ctx context.Context) (Snapshot, error) {
	vaccines, err := s.store.ListVaccines(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		Items:       make([]SnapshotItem, 0, len(vaccines)),
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Source:      "scraping",
	}
	for _, v := range vaccines {
		snap.Items = append(snap.Items, itemFromVaccine(v))
	}
	snap.TotalItems = len(snap.Items)
	return snap, nil
}

// Write rebuilds the snapshot from the store and replaces the document
// on disk. The temp-then-rename dance keeps concurrent readers from
// ever seeing a partial write.
func (s *Snapshotter) Write(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Snapshotter.Write")
	defer span.End()

	snap, err := s.build(ctx)
	if err != nil {
		return fmt.Errorf("build stock snapshot: %w", err)
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write stock snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace stock snapshot: %w", err)
	}
	return nil
}

// Read loads the last written snapshot.
func (s *Snapshotter) Read() (Snapshot, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse stock snapshot %s: %w", s.path, err)
	}
	return snap, nil
}
