// clinicctl is an operator CLI for the clinicsync server: it triggers
// syncs against the legacy system and renders the resulting data as
// tables.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var serverURL string

func client() *resty.Client {
	return resty.New().
		SetBaseURL(serverURL).
		SetTimeout(10 * time.Minute) // syncs drive a real browser
}

func main() {
	root := &cobra.Command{
		Use:   "clinicctl",
		Short: "operator tooling for the clinic sync server",
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "base url of the clinicsync server")

	root.AddCommand(syncCommand())
	root.AddCommand(stockCommand())
	root.AddCommand(patientCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
