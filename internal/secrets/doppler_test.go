package secrets

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSecretWithFallbackWithoutCLI(t *testing.T) {
	client := NewDopplerClient("cruisemall", "dev")
	client.lookPath = func(string) (string, error) { return "", errors.New("not installed") }

	assert.Error(t, client.Initialize())
	assert.Equal(t, "fallback", client.GetSecretWithFallback("JWT_SECRET_UNSET_FOR_TEST", "fallback"))
}

func TestGetSecretFromCLI(t *testing.T) {
	client := NewDopplerClient("cruisemall", "dev")
	client.lookPath = func(string) (string, error) { return "/usr/bin/doppler", nil }
	var gotArgs []string
	client.run = func(name string, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte("s3cret\n"), nil
	}

	value, err := client.GetSecret("AFFILIATE_TEST_SECRET_UNSET")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", value)
	assert.Contains(t, gotArgs, "AFFILIATE_TEST_SECRET_UNSET")
	assert.Contains(t, gotArgs, "cruisemall")
}

func TestGetSecretPrefersEnvironment(t *testing.T) {
	t.Setenv("AFFILIATE_TEST_SECRET", "from-env")
	client := NewDopplerClient("cruisemall", "dev")
	client.lookPath = func(string) (string, error) { return "/usr/bin/doppler", nil }
	client.run = func(string, ...string) ([]byte, error) {
		t.Fatal("CLI should not be called when the variable is set")
		return nil, nil
	}

	value, err := client.GetSecret("AFFILIATE_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)
}

func TestResolveKeepsCurrentValueOnFailure(t *testing.T) {
	client := NewDopplerClient("cruisemall", "dev")
	client.lookPath = func(string) (string, error) { return "/usr/bin/doppler", nil }
	client.run = func(_ string, args ...string) ([]byte, error) {
		if args[2] == "AFFILIATE_TEST_DATABASE_URL" {
			return []byte("postgres://doppler"), nil
		}
		return nil, errors.New("secret not found")
	}

	dbURL := "postgres://local"
	redisURL := "redis://local"
	client.Resolve(map[string]*string{
		"AFFILIATE_TEST_DATABASE_URL": &dbURL,
		"AFFILIATE_TEST_REDIS_URL":    &redisURL,
	})

	assert.Equal(t, "postgres://doppler", dbURL)
	assert.Equal(t, "redis://local", redisURL)
}
