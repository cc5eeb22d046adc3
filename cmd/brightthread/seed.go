package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"brightthread/internal/inventory"
	"brightthread/internal/order"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed demo inventory and a sample order",
	Long: `seed loads a small apparel catalog into the inventory ledger and creates
one demo order so the agent has something to talk about. Safe to run against
an empty database only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAppWithoutLLM(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if err := seedInventory(ctx, a.ledger); err != nil {
			return err
		}

		o, err := a.orders.CreateOrder(ctx, "demo-user", []order.NewLineItem{
			{InventoryID: "inv-polo-m-navy", Quantity: 50},
			{InventoryID: "inv-tee-l-white", Quantity: 25},
		})
		if err != nil {
			return fmt.Errorf("failed to create demo order: %w", err)
		}

		fmt.Printf("Seeded demo inventory and order %s (total $%.2f) for user demo-user\n", o.ID, o.TotalAmount)
		return nil
	},
}

func seedInventory(ctx context.Context, ledger *inventory.Ledger) error {
	catalog := []inventory.Record{
		{ID: "inv-polo-s-navy", ProductID: "prod-polo", ProductName: "Classic Polo", Color: "navy", Size: "S", AvailableQty: 300, BasePrice: 24.00},
		{ID: "inv-polo-m-navy", ProductID: "prod-polo", ProductName: "Classic Polo", Color: "navy", Size: "M", AvailableQty: 400, BasePrice: 24.00},
		{ID: "inv-polo-l-navy", ProductID: "prod-polo", ProductName: "Classic Polo", Color: "navy", Size: "L", AvailableQty: 250, BasePrice: 26.00},
		{ID: "inv-polo-m-red", ProductID: "prod-polo", ProductName: "Classic Polo", Color: "red", Size: "M", AvailableQty: 180, BasePrice: 24.00},
		{ID: "inv-tee-m-white", ProductID: "prod-tee", ProductName: "Crew T-Shirt", Color: "white", Size: "M", AvailableQty: 500, BasePrice: 11.50},
		{ID: "inv-tee-l-white", ProductID: "prod-tee", ProductName: "Crew T-Shirt", Color: "white", Size: "L", AvailableQty: 450, BasePrice: 11.50},
		{ID: "inv-tee-l-black", ProductID: "prod-tee", ProductName: "Crew T-Shirt", Color: "black", Size: "L", AvailableQty: 320, BasePrice: 12.00},
		{ID: "inv-hoodie-m-gray", ProductID: "prod-hoodie", ProductName: "Zip Hoodie", Color: "gray", Size: "M", AvailableQty: 120, BasePrice: 38.00},
		{ID: "inv-hoodie-l-gray", ProductID: "prod-hoodie", ProductName: "Zip Hoodie", Color: "gray", Size: "L", AvailableQty: 90, BasePrice: 38.00},
	}
	for _, rec := range catalog {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if err := ledger.Insert(ctx, ledger.DB(), rec); err != nil {
			return fmt.Errorf("failed to seed slot %s: %w", rec.ID, err)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
