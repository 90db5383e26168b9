package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/smallbiznis/promptly/internal/config"
	creditdomain "github.com/smallbiznis/promptly/internal/credit/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ErrUnknownFormat = errors.New("unknown_format")

type grantsDoc struct {
	Grants map[string]int64 `toml:"grants" json:"grants"`
	Prices []priceDoc       `toml:"prices,omitempty" json:"prices,omitempty"`
}

type priceDoc struct {
	PriceID string `toml:"price_id" json:"price_id"`
	Plan    string `toml:"plan" json:"plan"`
}

func newGrantsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "grants",
		Short: "Print the effective plan grant table and price mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			holder, err := config.NewPlanCatalogHolder(cfg, creditdomain.DefaultCatalog(), zap.NewNop())
			if err != nil {
				return fmt.Errorf("load plan catalog: %w", err)
			}
			return renderGrants(cmd.OutOrStdout(), holder.Get(), format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "toml", "Output format: toml or json")
	return cmd
}

func renderGrants(w io.Writer, catalog config.PlanCatalog, format string) error {
	table := creditdomain.GrantTableFrom(catalog)
	doc := grantsDoc{Grants: make(map[string]int64, len(table))}
	for plan, amount := range table {
		doc.Grants[string(plan)] = amount
	}
	for _, p := range catalog.Prices {
		doc.Prices = append(doc.Prices, priceDoc{PriceID: p.PriceID, Plan: p.Plan})
	}
	sort.Slice(doc.Prices, func(i, j int) bool { return doc.Prices[i].PriceID < doc.Prices[j].PriceID })

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "toml":
		enc := toml.NewEncoder(w)
		enc.SetIndentTables(true)
		return enc.Encode(doc)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
