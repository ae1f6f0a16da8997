package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphgate/internal/delegate"
	"github.com/hanpama/graphgate/internal/eventbus"
	"github.com/hanpama/graphgate/internal/events"
	"github.com/hanpama/graphgate/internal/executor"
	"github.com/hanpama/graphgate/internal/gqltp"
	"github.com/hanpama/graphgate/internal/language"
)

type capturedCall struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// stubBackend records every call it receives and replies with the same body.
func stubBackend(t *testing.T, reply string) (*delegate.Target, *[]capturedCall) {
	t.Helper()
	calls := &[]capturedCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call capturedCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&call))
		*calls = append(*calls, call)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return &delegate.Target{Backend: "authors", URL: srv.URL, Client: gqltp.New()}, calls
}

func authorResolver(target *delegate.Target) *Resolver {
	return &Resolver{
		Target:     target,
		BatchField: "authorsByIds",
		ExtractKey: func(source any) (any, error) {
			parent, _ := source.(map[string]any)
			return parent["authorId"], nil
		},
		SynthesizeArgs: func(keys []any) map[string]any {
			return map[string]any{"ids": keys}
		},
		Correlate:   CorrelateByField("id"),
		ExtraFields: []string{"id"},
	}
}

func authorTask(t *testing.T, authorID any) executor.AsyncResolveTask {
	t.Helper()
	doc, err := language.ParseQuery(`{ author { name } }`)
	require.NoError(t, err)
	field := doc.Operations[0].SelectionSet[0].(*language.Field)
	return executor.AsyncResolveTask{
		ObjectType: "Post",
		Field:      "author",
		Source:     map[string]any{"authorId": authorID},
		Selection:  field.SelectionSet,
	}
}

func recJSON(id string) string {
	return fmt.Sprintf(`{"id": %q, "name": "record %s"}`, id, id)
}

// sentField parses the captured query and returns its single top-level field.
func sentField(t *testing.T, call capturedCall) *language.Field {
	t.Helper()
	doc, err := language.ParseQuery(call.Query)
	require.NoError(t, err)
	require.Len(t, doc.Operations, 1)
	require.Len(t, doc.Operations[0].SelectionSet, 1)
	return doc.Operations[0].SelectionSet[0].(*language.Field)
}

func TestWindowIssuesOneCallForAllSiblings(t *testing.T) {
	reply := fmt.Sprintf(`{"data": {"authorsByIds": [%s, %s, %s]}}`, recJSON("01"), recJSON("06"), recJSON("02"))
	target, calls := stubBackend(t, reply)
	r := authorResolver(target)

	tasks := []executor.AsyncResolveTask{
		authorTask(t, "06"),
		authorTask(t, "02"),
		authorTask(t, "01"),
		authorTask(t, "01"),
	}
	results := r.ResolveWindow(context.Background(), tasks)

	require.Len(t, *calls, 1)
	require.Len(t, results, 4)
	for _, res := range results {
		require.NoError(t, res.Error)
	}
}

func TestWindowMapsResultsBackInRegistrationOrder(t *testing.T) {
	// The backend answers in its own order; slots still line up with the
	// keys as registered, and the duplicate key receives its record twice.
	reply := fmt.Sprintf(`{"data": {"authorsByIds": [%s, %s, %s]}}`, recJSON("01"), recJSON("06"), recJSON("02"))
	target, _ := stubBackend(t, reply)
	r := authorResolver(target)

	tasks := []executor.AsyncResolveTask{
		authorTask(t, "06"),
		authorTask(t, "02"),
		authorTask(t, "01"),
		authorTask(t, "01"),
	}
	results := r.ResolveWindow(context.Background(), tasks)

	require.Equal(t, rec("06"), results[0].Value)
	require.Equal(t, rec("02"), results[1].Value)
	require.Equal(t, rec("01"), results[2].Value)
	require.Equal(t, rec("01"), results[3].Value)
}

func TestWindowSendsDistinctKeysOnly(t *testing.T) {
	reply := fmt.Sprintf(`{"data": {"authorsByIds": [%s, %s, %s]}}`, recJSON("06"), recJSON("02"), recJSON("01"))
	target, calls := stubBackend(t, reply)
	r := authorResolver(target)

	tasks := []executor.AsyncResolveTask{
		authorTask(t, "06"),
		authorTask(t, "02"),
		authorTask(t, "01"),
		authorTask(t, "01"),
	}
	r.ResolveWindow(context.Background(), tasks)

	field := sentField(t, (*calls)[0])
	require.Equal(t, "authorsByIds", field.Name)
	require.Len(t, field.Arguments, 1)
	require.Equal(t, "ids", field.Arguments[0].Name)

	ids := field.Arguments[0].Value
	require.Equal(t, language.ListValue, ids.Kind)
	var sent []string
	for _, child := range ids.Children {
		sent = append(sent, child.Value.Raw)
	}
	require.Equal(t, []string{"06", "02", "01"}, sent)
}

func TestWindowSelectionCarriesCorrelationField(t *testing.T) {
	reply := fmt.Sprintf(`{"data": {"authorsByIds": [%s]}}`, recJSON("06"))
	target, calls := stubBackend(t, reply)
	r := authorResolver(target)

	r.ResolveWindow(context.Background(), []executor.AsyncResolveTask{authorTask(t, "06")})

	field := sentField(t, (*calls)[0])
	var names []string
	for _, sel := range field.SelectionSet {
		names = append(names, sel.(*language.Field).Name)
	}
	require.Equal(t, []string{"name", "id"}, names)
}

func TestMissingKeyGetsEmptySlotWithoutShifting(t *testing.T) {
	reply := fmt.Sprintf(`{"data": {"authorsByIds": [%s, %s]}}`, recJSON("a"), recJSON("c"))
	target, _ := stubBackend(t, reply)
	r := authorResolver(target)

	tasks := []executor.AsyncResolveTask{
		authorTask(t, "a"),
		authorTask(t, "b"),
		authorTask(t, "c"),
	}
	results := r.ResolveWindow(context.Background(), tasks)

	require.Equal(t, rec("a"), results[0].Value)
	require.NoError(t, results[1].Error)
	require.Nil(t, results[1].Value)
	require.Equal(t, rec("c"), results[2].Value)
}

func TestNilKeyResolvesEmptyWithoutJoiningWindow(t *testing.T) {
	reply := fmt.Sprintf(`{"data": {"authorsByIds": [%s]}}`, recJSON("06"))
	target, calls := stubBackend(t, reply)
	r := authorResolver(target)

	tasks := []executor.AsyncResolveTask{
		authorTask(t, "06"),
		authorTask(t, nil),
	}
	results := r.ResolveWindow(context.Background(), tasks)

	require.Equal(t, rec("06"), results[0].Value)
	require.Nil(t, results[1].Value)
	require.NoError(t, results[1].Error)

	field := sentField(t, (*calls)[0])
	require.Len(t, field.Arguments[0].Value.Children, 1)
}

func TestAllNilKeysSkipTheRemoteCall(t *testing.T) {
	target, calls := stubBackend(t, `{"data": {}}`)
	r := authorResolver(target)

	results := r.ResolveWindow(context.Background(), []executor.AsyncResolveTask{
		authorTask(t, nil),
		authorTask(t, nil),
	})

	require.Empty(t, *calls)
	require.Nil(t, results[0].Value)
	require.Nil(t, results[1].Value)
}

func TestExtractionFailureStaysPerTask(t *testing.T) {
	reply := fmt.Sprintf(`{"data": {"authorsByIds": [%s]}}`, recJSON("06"))
	target, _ := stubBackend(t, reply)
	r := authorResolver(target)
	r.ExtractKey = func(source any) (any, error) {
		parent := source.(map[string]any)
		if parent["broken"] == true {
			return nil, errors.New("unreadable parent")
		}
		return parent["authorId"], nil
	}

	broken := authorTask(t, "ignored")
	broken.Source = map[string]any{"broken": true}

	results := r.ResolveWindow(context.Background(), []executor.AsyncResolveTask{
		authorTask(t, "06"),
		broken,
	})

	require.NoError(t, results[0].Error)
	require.Equal(t, rec("06"), results[0].Value)
	require.ErrorContains(t, results[1].Error, "unreadable parent")
}

func TestBackendErrorFailsWholeWindow(t *testing.T) {
	reply := `{"errors": [{"message": "store unavailable"}]}`
	target, _ := stubBackend(t, reply)
	r := authorResolver(target)

	tasks := []executor.AsyncResolveTask{
		authorTask(t, "06"),
		authorTask(t, "02"),
		authorTask(t, nil),
	}
	results := r.ResolveWindow(context.Background(), tasks)

	require.ErrorContains(t, results[0].Error, "store unavailable")
	require.ErrorContains(t, results[0].Error, "authors")
	require.Equal(t, results[0].Error, results[1].Error)

	// The empty-key caller never joined the window, so it is unaffected.
	require.NoError(t, results[2].Error)
}

func TestTransportFailureFailsWholeWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	target := &delegate.Target{Backend: "authors", URL: srv.URL, Client: gqltp.New()}
	r := authorResolver(target)

	results := r.ResolveWindow(context.Background(), []executor.AsyncResolveTask{
		authorTask(t, "06"),
		authorTask(t, "02"),
	})

	var upstream *gqltp.UpstreamError
	require.ErrorAs(t, results[0].Error, &upstream)
	require.ErrorAs(t, results[1].Error, &upstream)
}

func TestCorrelationFailurePoisonsWindow(t *testing.T) {
	// One record lacks the key field, so no slot can be trusted.
	reply := fmt.Sprintf(`{"data": {"authorsByIds": [%s, {"name": "orphan"}]}}`, recJSON("06"))
	target, _ := stubBackend(t, reply)
	r := authorResolver(target)

	results := r.ResolveWindow(context.Background(), []executor.AsyncResolveTask{
		authorTask(t, "06"),
		authorTask(t, "02"),
	})

	var ce *CorrelationError
	require.ErrorAs(t, results[0].Error, &ce)
	require.Equal(t, "authors", ce.Backend)
	require.Equal(t, "authorsByIds", ce.Field)
	require.ErrorAs(t, results[1].Error, &ce)
}

func TestWindowIsIdempotent(t *testing.T) {
	reply := fmt.Sprintf(`{"data": {"authorsByIds": [%s, %s]}}`, recJSON("06"), recJSON("02"))
	target, _ := stubBackend(t, reply)
	r := authorResolver(target)

	tasks := []executor.AsyncResolveTask{
		authorTask(t, "06"),
		authorTask(t, "02"),
		authorTask(t, "06"),
	}
	first := r.ResolveWindow(context.Background(), tasks)
	second := r.ResolveWindow(context.Background(), tasks)
	require.Equal(t, first, second)
}

func TestConnectionShapedWindow(t *testing.T) {
	reply := `{"data": {"commentsForPosts": {
		"edges": [{"cursor": "c1"}, {"cursor": "c2"}, {"cursor": "c3"}],
		"nodes": [
			{"postId": "p1", "body": "first"},
			{"postId": "p2", "body": "second"},
			{"postId": "p1", "body": "third"}
		]
	}}}`
	target, _ := stubBackend(t, reply)
	r := &Resolver{
		Target:     target,
		BatchField: "commentsForPosts",
		ExtractKey: func(source any) (any, error) {
			return source.(map[string]any)["id"], nil
		},
		SynthesizeArgs: func(keys []any) map[string]any {
			return map[string]any{"postIds": keys}
		},
		Normalize:   NormalizeConnection,
		Correlate:   CorrelateGroupsByField("postId"),
		ExtraFields: []string{"postId"},
	}

	task := func(id string) executor.AsyncResolveTask {
		return executor.AsyncResolveTask{
			ObjectType: "Post",
			Field:      "comments",
			Source:     map[string]any{"id": id},
		}
	}
	results := r.ResolveWindow(context.Background(), []executor.AsyncResolveTask{task("p1"), task("p2")})

	require.NoError(t, results[0].Error)
	require.Equal(t, []any{
		map[string]any{"cursor": "c1", "postId": "p1", "body": "first"},
		map[string]any{"cursor": "c3", "postId": "p1", "body": "third"},
	}, results[0].Value)
	require.Equal(t, []any{
		map[string]any{"cursor": "c2", "postId": "p2", "body": "second"},
	}, results[1].Value)
}

func TestWindowFlushPublishesEvent(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	var flushes []events.BatchWindowFlush
	eventbus.Subscribe(func(_ context.Context, e events.BatchWindowFlush) {
		flushes = append(flushes, e)
	})

	reply := fmt.Sprintf(`{"data": {"authorsByIds": [%s, %s, %s]}}`, recJSON("06"), recJSON("02"), recJSON("01"))
	target, _ := stubBackend(t, reply)
	r := authorResolver(target)

	r.ResolveWindow(context.Background(), []executor.AsyncResolveTask{
		authorTask(t, "06"),
		authorTask(t, "02"),
		authorTask(t, "01"),
		authorTask(t, "01"),
	})

	require.Len(t, flushes, 1)
	require.Equal(t, "authors", flushes[0].Backend)
	require.Equal(t, "Post", flushes[0].ObjectType)
	require.Equal(t, "author", flushes[0].Field)
	require.Equal(t, 4, flushes[0].Keys)
	require.Equal(t, 3, flushes[0].DistinctKeys)
	require.NoError(t, flushes[0].Err)
}

func TestMergeSelectionsCollapsesSharedFields(t *testing.T) {
	docA, err := language.ParseQuery(`{ f { name posts { title } } }`)
	require.NoError(t, err)
	docB, err := language.ParseQuery(`{ f { name posts { id } avatar } }`)
	require.NoError(t, err)
	selA := docA.Operations[0].SelectionSet[0].(*language.Field).SelectionSet
	selB := docB.Operations[0].SelectionSet[0].(*language.Field).SelectionSet

	merged := mergeSelections(selA, selB)
	require.Len(t, merged, 3)

	posts := merged[1].(*language.Field)
	require.Equal(t, "posts", posts.Name)
	require.Len(t, posts.SelectionSet, 2)

	// Source selections stay untouched.
	require.Len(t, selA[1].(*language.Field).SelectionSet, 1)
	require.Len(t, selB[1].(*language.Field).SelectionSet, 1)
}
