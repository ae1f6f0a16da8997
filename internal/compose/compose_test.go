package compose

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphgate/internal/language"
	"github.com/hanpama/graphgate/internal/schema"
)

func mustSDL(t *testing.T, sdl string) *schema.Schema {
	t.Helper()
	s, err := schema.BuildFromSDL(sdl)
	require.NoError(t, err)
	return s
}

func sub(t *testing.T, backend, sdl string) Subschema {
	t.Helper()
	return Subschema{
		Backend: backend,
		URL:     "http://" + backend + ".internal/graphql",
		Schema:  mustSDL(t, sdl),
	}
}

const catalogSDL = `
type Query {
  product(id: ID!): Product
  products(first: Int): [Product!]!
}

type Product {
  id: ID!
  title: String!
  price: Float!
}
`

const reviewsSDL = `
type Query {
  review(id: ID!): Review
  reviewsByProductIds(productIds: [ID!]!): [Review!]!
}

type Mutation {
  postReview(productId: ID!, body: String!): Review!
}

type Review {
  id: ID!
  productId: ID!
  body: String!
}
`

func TestComposeMergesDisjointBackends(t *testing.T) {
	c, err := Compose([]Subschema{
		sub(t, "catalog", catalogSDL),
		sub(t, "reviews", reviewsSDL),
	}, nil, nil)
	require.NoError(t, err)

	query := c.Schema.GetQueryType()
	require.NotNil(t, query)
	for _, name := range []string{"product", "products", "review", "reviewsByProductIds"} {
		f := query.GetField(name)
		require.NotNil(t, f, "query field %s", name)
		require.True(t, f.Async, "query field %s must delegate", name)
	}

	require.NotNil(t, c.Schema.GetType("Product"))
	require.NotNil(t, c.Schema.GetType("Review"))

	route := c.Roots[FieldKey{Type: "Query", Field: "product"}]
	require.NotNil(t, route)
	require.Equal(t, "catalog", route.Target.Backend)
	require.Equal(t, "product", route.Field)

	route = c.Roots[FieldKey{Type: "Query", Field: "reviewsByProductIds"}]
	require.NotNil(t, route)
	require.Equal(t, "reviews", route.Target.Backend)
}

func TestComposeMergesMutationRoots(t *testing.T) {
	c, err := Compose([]Subschema{
		sub(t, "catalog", catalogSDL),
		sub(t, "reviews", reviewsSDL),
	}, nil, nil)
	require.NoError(t, err)

	require.Equal(t, "Mutation", c.Schema.MutationType)
	mutation := c.Schema.GetMutationType()
	require.NotNil(t, mutation)
	require.NotNil(t, mutation.GetField("postReview"))

	route := c.Roots[FieldKey{Type: "Mutation", Field: "postReview"}]
	require.NotNil(t, route)
	require.Equal(t, "reviews", route.Target.Backend)
	require.Equal(t, language.Mutation, route.Operation)
}

func TestComposeWithoutMutationsLeavesRootUnset(t *testing.T) {
	c, err := Compose([]Subschema{sub(t, "catalog", catalogSDL)}, nil, nil)
	require.NoError(t, err)
	require.Empty(t, c.Schema.MutationType)
	require.Nil(t, c.Schema.GetType("Mutation"))
}

func TestComposeRejectsTypeCollisionByDefault(t *testing.T) {
	other := `
type Query { featured: Product }
type Product { id: ID! rating: Float }
`
	_, err := Compose([]Subschema{
		sub(t, "catalog", catalogSDL),
		sub(t, "reviews", other),
	}, nil, nil)
	require.Error(t, err)

	var ce *CollisionError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "type", ce.Kind)
	require.Equal(t, "Product", ce.Name)
	require.Equal(t, []string{"catalog", "reviews"}, ce.Backends)
}

func TestComposeRenamesCollidingTypes(t *testing.T) {
	other := `
type Query { featured: Product }
type Product { id: ID! rating: Float }
`
	c, err := Compose([]Subschema{
		sub(t, "catalog", catalogSDL),
		sub(t, "reviews", other),
	}, nil, &Options{Policy: PolicyRename})
	require.NoError(t, err)

	// First claimant keeps the name, the newcomer is renamed.
	require.NotNil(t, c.Schema.GetType("Product"))
	renamed := c.Schema.GetType("ReviewsProduct")
	require.NotNil(t, renamed)
	require.NotNil(t, renamed.GetField("rating"))

	// References within the renamed backend follow the new name.
	featured := c.Schema.GetQueryType().GetField("featured")
	require.NotNil(t, featured)
	require.Equal(t, "ReviewsProduct", schema.GetNamedType(featured.Type))

	target := c.Targets["reviews"]
	require.Equal(t, "Product", target.ToBackendType["ReviewsProduct"])
	require.Equal(t, "ReviewsProduct", target.FromBackendType["Product"])

	// The untouched backend needs no translation.
	require.Empty(t, c.Targets["catalog"].ToBackendType)
}

func TestComposeRejectsRootFieldCollision(t *testing.T) {
	a := `type Query { search(term: String!): String }`
	b := `type Query { search(term: String!): Int }`
	_, err := Compose([]Subschema{sub(t, "catalog", a), sub(t, "reviews", b)}, nil, nil)

	var ce *CollisionError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "field", ce.Kind)
	require.Equal(t, "Query.search", ce.Name)
}

func TestComposeRenamesCollidingRootFields(t *testing.T) {
	a := `type Query { search(term: String!): String }`
	b := `type Query { search(term: String!): Int }`
	c, err := Compose([]Subschema{
		sub(t, "catalog", a),
		sub(t, "reviews", b),
	}, nil, &Options{Policy: PolicyRename})
	require.NoError(t, err)

	query := c.Schema.GetQueryType()
	require.NotNil(t, query.GetField("search"))
	require.NotNil(t, query.GetField("reviews_search"))

	// The renamed composite field still delegates under its backend name.
	route := c.Roots[FieldKey{Type: "Query", Field: "reviews_search"}]
	require.NotNil(t, route)
	require.Equal(t, "search", route.Field)
	require.Equal(t, "reviews", route.Target.Backend)
}

func TestComposeReservesCompositeRootNames(t *testing.T) {
	// A non-root object named Mutation would squat on the composite root
	// namespace, so it counts as a collision even with no mutations around.
	sdl := `
type Query { pending: Mutation }
type Mutation { id: ID! }
schema { query: Query }
`
	s := mustSDL(t, sdl)
	s.MutationType = ""
	_, err := Compose([]Subschema{{Backend: "jobs", URL: "http://jobs", Schema: s}}, nil, nil)

	var ce *CollisionError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "type", ce.Kind)
	require.Equal(t, "Mutation", ce.Name)
	require.Equal(t, []string{"jobs"}, ce.Backends)
}

func TestComposeRejectsDuplicateBackendNames(t *testing.T) {
	_, err := Compose([]Subschema{
		sub(t, "catalog", catalogSDL),
		sub(t, "catalog", reviewsSDL),
	}, nil, nil)
	require.ErrorContains(t, err, "configured twice")
}

func TestComposeSharesBuiltinScalars(t *testing.T) {
	c, err := Compose([]Subschema{
		sub(t, "catalog", catalogSDL),
		sub(t, "reviews", reviewsSDL),
	}, nil, nil)
	require.NoError(t, err)

	for _, name := range []string{"String", "Int", "Float", "Boolean", "ID"} {
		typ := c.Schema.GetType(name)
		require.NotNil(t, typ, "builtin %s", name)
		require.Equal(t, schema.TypeKindScalar, typ.Kind)
	}
}

func TestComposeKeepsAbstractTypesResolvable(t *testing.T) {
	sdl := `
type Query { node(id: ID!): Node }
interface Node { id: ID! }
type Product implements Node { id: ID! title: String! }
type Category implements Node { id: ID! name: String! }
`
	c, err := Compose([]Subschema{sub(t, "catalog", sdl)}, nil, nil)
	require.NoError(t, err)

	node := c.Schema.GetType("Node")
	require.NotNil(t, node)
	require.ElementsMatch(t, []string{"Product", "Category"}, node.PossibleTypes)
	require.Contains(t, c.Schema.GetType("Product").Interfaces, "Node")
}

func TestComposeRenamesAbstractMembership(t *testing.T) {
	a := `type Query { product: Product } type Product { id: ID! }`
	b := `
type Query { search: [Result!]! }
union Result = Product | Shop
type Product { id: ID! rating: Float }
type Shop { id: ID! }
`
	c, err := Compose([]Subschema{
		sub(t, "catalog", a),
		sub(t, "reviews", b),
	}, nil, &Options{Policy: PolicyRename})
	require.NoError(t, err)

	result := c.Schema.GetType("Result")
	require.NotNil(t, result)
	require.ElementsMatch(t, []string{"ReviewsProduct", "Shop"}, result.PossibleTypes)
}

func TestComposeDoesNotMutateSubschemas(t *testing.T) {
	other := `
type Query { featured: Product }
type Product { id: ID! rating: Float }
`
	reviews := sub(t, "reviews", other)
	_, err := Compose([]Subschema{
		sub(t, "catalog", catalogSDL),
		reviews,
	}, nil, &Options{Policy: PolicyRename})
	require.NoError(t, err)

	// The backend schema keeps its own names: it is reused verbatim when
	// synthesizing delegated operations.
	require.NotNil(t, reviews.Schema.GetType("Product"))
	require.Nil(t, reviews.Schema.GetType("ReviewsProduct"))
	featured := reviews.Schema.GetQueryType().GetField("featured")
	require.Equal(t, "Product", schema.GetNamedType(featured.Type))
}
