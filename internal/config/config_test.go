package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func TestNormalizeSubdomain(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"shop", "shop"},
		{"shop.amocrm.ru", "shop"},
		{"https://shop.amocrm.ru", "shop"},
		{"https://shop.amocrm.ru/settings/", "shop"},
		{"Shop-42.amocrm.com.br", "Shop-42"},
		{"  shop  ", "shop"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeSubdomain(tc.raw), "raw=%q", tc.raw)
	}
}

func TestValidateRequiresExternalAccounts(t *testing.T) {
	cfg := Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KASPI_API_TOKEN")
	assert.Contains(t, err.Error(), "AMO_SUBDOMAIN")

	cfg.Kaspi.APIToken = "token"
	cfg.Amo.Subdomain = "shop"
	cfg.Amo.ClientID = "id"
	cfg.Amo.ClientSecret = "secret"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsDottedSubdomain(t *testing.T) {
	cfg := Config{}
	cfg.Kaspi.APIToken = "token"
	cfg.Amo.Subdomain = "shop.amocrm"
	cfg.Amo.ClientID = "id"
	cfg.Amo.ClientSecret = "secret"
	require.Error(t, cfg.Validate())
}

func TestModuleRefusesStartupWithoutCredentials(t *testing.T) {
	for _, key := range []string{"KASPI_API_TOKEN", "AMO_SUBDOMAIN", "AMO_CLIENT_ID", "AMO_CLIENT_SECRET"} {
		t.Setenv(key, "")
	}

	app := fx.New(Module, fx.NopLogger)
	require.Error(t, app.Err())
	assert.Contains(t, app.Err().Error(), "KASPI_API_TOKEN")
}

func TestModuleAcceptsCompleteCredentials(t *testing.T) {
	t.Setenv("KASPI_API_TOKEN", "token")
	t.Setenv("AMO_SUBDOMAIN", "shop")
	t.Setenv("AMO_CLIENT_ID", "id")
	t.Setenv("AMO_CLIENT_SECRET", "secret")

	app := fx.New(Module, fx.NopLogger)
	require.NoError(t, app.Err())
}
