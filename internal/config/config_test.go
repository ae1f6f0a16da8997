package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	compose "github.com/hanpama/graphgate/internal/compose"
	schema "github.com/hanpama/graphgate/internal/schema"
)

const fullConfig = `
server:
  addr: ":9090"
  pretty: true
  timeout: 5s
  max_body_bytes: 2048
  cors_origins: ["https://app.example.com"]
  playground: false

backends:
  - name: catalog
    url: http://catalog:8080/graphql
    timeout: 2s
    headers:
      Authorization: Bearer service-token
      X-Env: staging
  - name: reviews
    url: http://reviews:8080/graphql

stitch:
  - object: Product
    field: reviews
    type: "[Review!]"
    backend: reviews
    batch_field: reviewsByProductIds
    parent_key: id
    arg: productIds
    remote_key: productId
  - object: Review
    field: product
    type: Product
    backend: catalog
    single_field: product
    parent_key: productId
    arg: id

composition:
  on_introspection_error: exclude
  on_collision: rename

telemetry:
  otel_endpoint: otelcol:4317
  otel_service: gateway
  metrics: true

log:
  level: debug
  development: true
`

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, 10*time.Second, cfg.ServerTimeout())
	require.True(t, cfg.Server.Playground)
	require.True(t, cfg.Server.Introspection)
	require.Equal(t, OnIntrospectionErrorFail, cfg.Composition.OnIntrospectionError)
	require.Equal(t, compose.PolicyFail, cfg.CollisionPolicy())
	require.Equal(t, "graphgate", cfg.Telemetry.OTelService)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFullConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Server.Addr)
	require.True(t, cfg.Server.Pretty)
	require.Equal(t, 5*time.Second, cfg.ServerTimeout())
	require.EqualValues(t, 2048, cfg.Server.MaxBodyBytes)
	require.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	require.False(t, cfg.Server.Playground, "explicit false must override the default")
	require.True(t, cfg.Server.Introspection, "unset key keeps the default")

	require.Len(t, cfg.Backends, 2)
	catalog := cfg.Backends[0]
	require.Equal(t, "catalog", catalog.Name)
	require.Equal(t, "http://catalog:8080/graphql", catalog.URL)
	require.Equal(t, 2*time.Second, catalog.BackendTimeout())
	require.Equal(t, "Bearer service-token", catalog.Headers["Authorization"])
	require.Equal(t, "staging", catalog.Headers["X-Env"])
	require.Zero(t, cfg.Backends[1].BackendTimeout())

	require.Equal(t, OnIntrospectionErrorExclude, cfg.Composition.OnIntrospectionError)
	require.Equal(t, compose.PolicyRename, cfg.CollisionPolicy())

	require.Equal(t, "otelcol:4317", cfg.Telemetry.OTelEndpoint)
	require.Equal(t, "gateway", cfg.Telemetry.OTelService)
	require.True(t, cfg.Telemetry.Metrics)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Log.Development)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "reading config file")
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "backend without name",
			doc:     "backends:\n  - url: http://x\n",
			wantErr: "backends[0]: name is required",
		},
		{
			name:    "backend without url",
			doc:     "backends:\n  - name: catalog\n",
			wantErr: "url is required",
		},
		{
			name:    "duplicate backend",
			doc:     "backends:\n  - name: a\n    url: http://x\n  - name: a\n    url: http://y\n",
			wantErr: `duplicate name "a"`,
		},
		{
			name:    "bad backend timeout",
			doc:     "backends:\n  - name: a\n    url: http://x\n    timeout: soon\n",
			wantErr: `invalid duration "soon"`,
		},
		{
			name:    "bad server timeout",
			doc:     "server:\n  timeout: never\n",
			wantErr: "server.timeout",
		},
		{
			name:    "negative body limit",
			doc:     "server:\n  max_body_bytes: -1\n",
			wantErr: "max_body_bytes",
		},
		{
			name:    "stitch without strategy",
			doc:     "stitch:\n  - object: Product\n    field: reviews\n    type: String\n    backend: reviews\n",
			wantErr: "batch_field or single_field is required",
		},
		{
			name: "stitch with both strategies",
			doc: "stitch:\n  - object: Product\n    field: reviews\n    type: String\n    backend: reviews\n" +
				"    batch_field: a\n    single_field: b\n    parent_key: id\n    arg: ids\n    remote_key: pid\n",
			wantErr: "mutually exclusive",
		},
		{
			name:    "batch stitch missing remote key",
			doc:     "stitch:\n  - object: Product\n    field: reviews\n    type: String\n    backend: reviews\n    batch_field: a\n    parent_key: id\n    arg: ids\n",
			wantErr: "remote_key",
		},
		{
			name:    "stitch with bad type",
			doc:     "stitch:\n  - object: Product\n    field: reviews\n    type: \"[Review\"\n    backend: reviews\n    batch_field: a\n    parent_key: id\n    arg: ids\n    remote_key: pid\n",
			wantErr: "type reference",
		},
		{
			name:    "unknown introspection policy",
			doc:     "composition:\n  on_introspection_error: panic\n",
			wantErr: "on_introspection_error",
		},
		{
			name:    "unknown collision policy",
			doc:     "composition:\n  on_collision: merge\n",
			wantErr: "on_collision",
		},
		{
			name:    "broken extra types",
			doc:     "composition:\n  extra_types: \"type {\"\n",
			wantErr: "extra_types",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestExtrasConversion(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	extras, err := cfg.Extras()
	require.NoError(t, err)
	require.NotNil(t, extras)

	require.Len(t, extras.Batch, 1)
	b := extras.Batch[0]
	require.Equal(t, "Product", b.ObjectType)
	require.Equal(t, "reviews", b.Name)
	require.Equal(t, schema.ListType(schema.NonNullType(schema.NamedType("Review"))), b.Type)
	require.Equal(t, "reviews", b.Backend)
	require.Equal(t, "reviewsByProductIds", b.BatchField)
	require.Equal(t, "id", b.ParentKey)
	require.Equal(t, "productIds", b.ArgName)
	require.Equal(t, "productId", b.RemoteKey)

	require.Len(t, extras.Single, 1)
	s := extras.Single[0]
	require.Equal(t, "Review", s.ObjectType)
	require.Equal(t, "product", s.Name)
	require.Equal(t, schema.NamedType("Product"), s.Type)
	require.Equal(t, "product", s.RemoteField)
	require.Equal(t, "productId", s.ParentKey)
	require.Equal(t, "id", s.ArgName)
}

func TestExtrasEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	extras, err := cfg.Extras()
	require.NoError(t, err)
	require.Nil(t, extras)
}

func TestExtraTypesSDL(t *testing.T) {
	doc := "composition:\n  extra_types: |\n    \"A stitched view.\"\n    type ProductSummary {\n      id: ID!\n      score: Float\n    }\n"
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	extras, err := cfg.Extras()
	require.NoError(t, err)
	require.NotNil(t, extras)
	require.Len(t, extras.Types, 1)
	require.Equal(t, "ProductSummary", extras.Types[0].Name)
	require.Equal(t, schema.TypeKindObject, extras.Types[0].Kind)
	require.NotNil(t, extras.Types[0].GetField("score"))
}
