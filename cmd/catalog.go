package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/zjrosen/shopbot/internal/catalog"
	"github.com/zjrosen/shopbot/internal/config"
	"github.com/zjrosen/shopbot/internal/strapi"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the product list from the backend",
	Long: `Fetch the catalog once and print it. Useful to check the backend URL and
token before starting the bot.`,
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	if err := config.ValidateBackend(cfg.Backend); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	client, err := newBackendClient(cfg)
	if err != nil {
		return err
	}

	cache := catalog.New(client, catalogConfig(cfg.Catalog))
	products, err := cache.Refresh(cmd.Context())
	if err != nil {
		return fmt.Errorf("fetching catalog: %w", err)
	}
	printProducts(cmd.OutOrStdout(), products)
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d products from %s at %s\n",
		len(products), client.BaseURL(), cache.RefreshedAt().Format(time.RFC3339))
	return nil
}

const titleWidth = 40

func printProducts(w io.Writer, products []strapi.Product) {
	if len(products) == 0 {
		fmt.Fprintln(w, "No products.")
		return
	}

	idWidth := len("ID")
	for _, p := range products {
		idWidth = max(idWidth, runewidth.StringWidth(p.ID))
	}

	fmt.Fprintf(w, "%s  %s  %10s  %s\n",
		runewidth.FillRight("ID", idWidth), runewidth.FillRight("TITLE", titleWidth), "PRICE", "PICTURE")
	for _, p := range products {
		price := "-"
		if p.Price.Valid {
			price = p.Price.Decimal.StringFixed(2)
		}
		title := runewidth.Truncate(p.Title, titleWidth, "…")
		fmt.Fprintf(w, "%s  %s  %10s  %s\n",
			runewidth.FillRight(p.ID, idWidth), runewidth.FillRight(title, titleWidth), price, p.PictureURL)
	}
}
