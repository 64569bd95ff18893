package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("DB_DRIVER", "MySQL")
	t.Setenv("PORT", "")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example.com, ,https://b.example.com ")
	t.Setenv("APP_ENV", "production")

	env, err := LoadEnv()

	require.NoError(t, err)
	assert.Equal(t, "8080", env.Port)
	assert.Equal(t, "mysql", env.DBDriver)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, env.AllowedOrigins)
	assert.True(t, env.IsProduction())
}

func TestLoadEnv_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("APP_ENV", "")

	env, err := LoadEnv()

	require.NoError(t, err)
	assert.Equal(t, "postgres", env.DBDriver)
	assert.Equal(t, defaultOrigins, env.AllowedOrigins)
	assert.False(t, env.IsProduction())
}

func TestLoadEnv_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := LoadEnv()

	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestDialector(t *testing.T) {
	testCases := []struct {
		driver string
		name   string
	}{
		{"", "postgres"},
		{"postgres", "postgres"},
		{"postgresql", "postgres"},
		{"mysql", "mysql"},
	}
	for _, tc := range testCases {
		d, err := Dialector(tc.driver, "dsn")
		require.NoError(t, err, tc.driver)
		assert.Equal(t, tc.name, d.Name())
	}

	_, err := Dialector("sqlite", "dsn")
	assert.Error(t, err)
}

func TestInitClerk(t *testing.T) {
	assert.Error(t, InitClerk(""))
	assert.NoError(t, InitClerk("sk_test_dummy"))
}
