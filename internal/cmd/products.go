package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hummingbird-labs/hummingbird/internal/products"
)

var productsJSON bool

var productsCmd = &cobra.Command{
	Use:   "products <session-id>",
	Short: "Fetch the recommendations of a session",
	Long: `Fetch the recommendation list of a session once and print it.

A failed fetch never errors: it prints a single placeholder item with
id "error", exactly as the widget would show it.`,
	Args: cobra.ExactArgs(1),
	RunE: runProducts,
}

func init() {
	rootCmd.AddCommand(productsCmd)

	productsCmd.Flags().BoolVar(&productsJSON, "json", false, "Print the list as JSON")
}

func runProducts(cmd *cobra.Command, args []string) error {
	resolver, err := newResolver()
	if err != nil {
		return err
	}
	items := newProductsClient(resolver, nil).Fetch(cmd.Context(), args[0])
	if productsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(products.Response{Products: items})
	}
	return printItems(cmd.OutOrStdout(), items)
}

// printItems writes items as an aligned table.
func printItems(w io.Writer, items []products.Item) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tWEBSITE")
	for _, it := range items {
		website := it.WebsiteURL
		if website == "" {
			website = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", it.ID, it.Name, website)
	}
	return tw.Flush()
}
