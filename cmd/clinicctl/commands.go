package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type syncResult struct {
	Status           string   `json:"status"`
	Message          string   `json:"message"`
	Errors           []string `json:"errors"`
	StockCount       int      `json:"stock_count"`
	AppointmentCount int      `json:"appointment_count"`
	UserCount        int      `json:"user_count"`
	FallbackRows     int      `json:"fallback_rows"`
}

func syncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "sync <stock|calendar|users>",
		Short:     "run a sync against the legacy system",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"stock", "calendar", "users"},
		RunE: func(cmd *cobra.Command, args []string) error {
			domain := args[0]
			fmt.Printf("starting %s sync, this drives a real browser and can take a while...\n", domain)

			var result syncResult
			resp, err := client().R().
				SetResult(&result).
				SetError(&result).
				Post("/sync/" + domain)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}

			fmt.Printf("[%s] %s (http %d)\n", result.Status, result.Message, resp.StatusCode())
			if count := result.StockCount + result.AppointmentCount + result.UserCount; count > 0 {
				fmt.Printf("records: %d\n", count)
			}
			if result.FallbackRows > 0 {
				fmt.Printf("rows needing column-inference fallback: %d\n", result.FallbackRows)
			}
			for _, e := range result.Errors {
				fmt.Printf("  error: %s\n", e)
			}
			if result.Status == "error" {
				os.Exit(1)
			}
			return nil
		},
	}
	return cmd
}

type stockItem struct {
	Name           string  `json:"name"`
	Laboratory     string  `json:"laboratory"`
	CurrentStock   int     `json:"current_stock"`
	AvailableStock int     `json:"available_stock"`
	SalePrice      float64 `json:"sale_price"`
	StatusText     string  `json:"status_text"`
}

type stockResult struct {
	Status  string      `json:"status"`
	Items   []stockItem `json:"items"`
	Summary struct {
		TotalItems       int     `json:"total_items"`
		ItemsOut         int     `json:"items_out"`
		ItemsLow         int     `json:"items_low"`
		InventoryValue   float64 `json:"inventory_value"`
		PotentialRevenue float64 `json:"potential_revenue"`
	} `json:"summary"`
	LastUpdated string `json:"last_updated"`
}

func stockCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stock",
		Short: "show the current vaccine inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result stockResult
			_, err := client().R().SetResult(&result).Get("/stock")
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Vaccine", "Laboratory", "Current", "Available", "Sale Price", "Status"})
			for _, item := range result.Items {
				t.AppendRow(table.Row{
					item.Name, item.Laboratory,
					item.CurrentStock, item.AvailableStock,
					fmt.Sprintf("R$ %.2f", item.SalePrice),
					item.StatusText,
				})
			}
			t.Render()

			fmt.Printf("\n%d items (%d out, %d low) | inventory R$ %.2f | potential revenue R$ %.2f\n",
				result.Summary.TotalItems, result.Summary.ItemsOut, result.Summary.ItemsLow,
				result.Summary.InventoryValue, result.Summary.PotentialRevenue)
			if result.LastUpdated != "" {
				fmt.Printf("last updated: %s\n", result.LastUpdated)
			}
			return nil
		},
	}
}

type patientResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Patient *struct {
		Name         string `json:"name"`
		BirthDate    string `json:"birth_date"`
		Responsible1 string `json:"responsible1"`
		Responsible2 string `json:"responsible2"`
		RegisterDate string `json:"register_date"`
		CPF          string `json:"cpf"`
		Verified     bool   `json:"verified"`
	} `json:"patient"`
}

func patientCommand() *cobra.Command {
	var expectedName string
	cmd := &cobra.Command{
		Use:   "patient <cpf>",
		Short: "look a patient up in the legacy system by cpf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := json.Marshal(map[string]string{
				"cpf":  args[0],
				"name": expectedName,
			})

			var result patientResult
			_, err := client().R().
				SetHeader("Content-Type", "application/json").
				SetBody(body).
				SetResult(&result).
				SetError(&result).
				Post("/sync/patient-search")
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}

			if result.Patient == nil {
				fmt.Printf("[%s] %s\n", result.Status, result.Message)
				return nil
			}

			p := result.Patient
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendRows([]table.Row{
				{"Name", p.Name},
				{"CPF", p.CPF},
				{"Birth date", p.BirthDate},
				{"Responsible 1", p.Responsible1},
				{"Responsible 2", p.Responsible2},
				{"Registered", p.RegisterDate},
				{"Verified", p.Verified},
			})
			t.Render()
			if !p.Verified {
				fmt.Println("warning: the row did not contain the searched cpf; result may be a different patient")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&expectedName, "name", "", "expected patient name, used to verify a fuzzy match")
	return cmd
}
