package registry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/mcp-federation-broker/internal/brokererr"
	"github.com/platformbuilds/mcp-federation-broker/internal/registry"
	"github.com/platformbuilds/mcp-federation-broker/internal/transport"
)

func TestRegisterRejectsDuplicateAlias(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(&registry.Descriptor{Alias: "github", URL: "stdio://a", Transport: transport.TagStdio}))

	err := r.Register(&registry.Descriptor{Alias: "github", URL: "stdio://b", Transport: transport.TagStdio})
	require.Error(t, err)

	d, ok := r.Get("github")
	require.True(t, ok)
	require.Equal(t, "stdio://a", d.URL, "registry must be left unchanged on a rejected duplicate registration")
}

func TestUnregisterIsIdempotentWithAlreadyDetachedError(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(&registry.Descriptor{Alias: "github", URL: "stdio://a", Transport: transport.TagStdio}))

	require.NoError(t, r.Unregister("github"))

	err := r.Unregister("github")
	require.Error(t, err)
	var detached *brokererr.AlreadyDetachedError
	require.ErrorAs(t, err, &detached)
	require.Equal(t, "github", detached.Alias)
}

func TestResolveFederatedAndRelativeForms(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(&registry.Descriptor{Alias: "github", URL: "stdio://a", Transport: transport.TagStdio}))

	alias, remote, _, err := r.Resolve("mcp://github/issues.json", "")
	require.NoError(t, err)
	require.Equal(t, "github", alias)
	require.Equal(t, "issues.json", remote)

	alias, remote, _, err = r.Resolve("issues.json", "github")
	require.NoError(t, err)
	require.Equal(t, "github", alias)
	require.Equal(t, "issues.json", remote)

	_, _, _, err = r.Resolve("mcp://unknown/issues.json", "")
	require.Error(t, err)
}

func TestAliasesReflectsRegistrationState(t *testing.T) {
	r := registry.New()
	require.Empty(t, r.Aliases())

	require.NoError(t, r.Register(&registry.Descriptor{Alias: "a", URL: "stdio://a", Transport: transport.TagStdio}))
	require.NoError(t, r.Register(&registry.Descriptor{Alias: "b", URL: "stdio://b", Transport: transport.TagStdio}))
	require.ElementsMatch(t, []string{"a", "b"}, r.Aliases())

	require.NoError(t, r.Unregister("a"))
	require.ElementsMatch(t, []string{"b"}, r.Aliases())
}
