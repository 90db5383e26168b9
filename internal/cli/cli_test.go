package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/smallbiznis/promptly/internal/config"
	creditdomain "github.com/smallbiznis/promptly/internal/credit/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "reset-due", "reset-account", "settle-deferred", "grants", "migrate"})
}

func TestRenderGrantsTOML(t *testing.T) {
	catalog := creditdomain.DefaultCatalog()
	catalog.Prices = []config.PriceMapping{
		{PriceID: "price_Elite", Plan: "elite"},
		{PriceID: "price_Pro", Plan: "pro"},
	}

	var out bytes.Buffer
	require.NoError(t, renderGrants(&out, catalog, "toml"))

	var doc grantsDoc
	require.NoError(t, toml.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, int64(50), doc.Grants["free"])
	assert.Equal(t, int64(500), doc.Grants["pro"])
	require.Len(t, doc.Prices, 2)
	assert.Equal(t, "price_Elite", doc.Prices[0].PriceID)
	assert.Equal(t, "pro", doc.Prices[1].Plan)
}

func TestRenderGrantsOverridesAmountsOnly(t *testing.T) {
	catalog := config.PlanCatalog{Grants: map[string]int64{"free": 75, "enterprise": 10}}

	var out bytes.Buffer
	require.NoError(t, renderGrants(&out, catalog, "json"))

	var doc grantsDoc
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, int64(75), doc.Grants["free"])
	assert.NotContains(t, doc.Grants, "enterprise")
	assert.Empty(t, doc.Prices)
}

func TestRenderGrantsRejectsUnknownFormat(t *testing.T) {
	var out bytes.Buffer
	err := renderGrants(&out, creditdomain.DefaultCatalog(), "xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.Zero(t, out.Len())
}

func TestGrantsCommandDefaults(t *testing.T) {
	t.Setenv("PLANS_FILE", "")
	t.Setenv("STRIPE_PRICE_ID_PRO", "price_test_pro")
	t.Setenv("STRIPE_PRICE_ID_ELITE", "")

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"grants", "--format", "json"})
	require.NoError(t, root.Execute())

	var doc grantsDoc
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, int64(50), doc.Grants["free"])
	assert.Equal(t, []priceDoc{{PriceID: "price_test_pro", Plan: "pro"}}, doc.Prices)
}

func TestMigrateDownRequiresSteps(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"migrate", "down", "--steps", "0"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--steps")
}

func TestMigrateDownRejectsSQLite(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "sqlite")

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"migrate", "down"})

	assert.ErrorIs(t, root.Execute(), ErrDownUnsupported)
}
