package deploy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ontomem/omc/pkg/helix"
	"github.com/ontomem/omc/pkg/storage"
)

func TestOrderAndDependencies(t *testing.T) {
	order := Order(Level3)
	if len(order) != 4 || order[0] != Level0 || order[3] != Level3 {
		t.Fatalf("order = %v", order)
	}

	deps := Dependencies(Level3)
	want := []Level{Level0, Level1, Level2}
	if len(deps) != len(want) {
		t.Fatalf("deps = %v", deps)
	}
	for i := range want {
		if deps[i] != want[i] {
			t.Fatalf("deps = %v, want %v", deps, want)
		}
	}
}

func TestAccumulatedQueries(t *testing.T) {
	queries := AccumulatedQueries(Level1)
	if !contains(queries, "addUser") || !contains(queries, "addMemory") {
		t.Errorf("queries = %v", queries)
	}
	if contains(queries, "searchMemories") {
		t.Error("level 2 query leaked into level 1 accumulation")
	}
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`
version: 1
target:
  host: localhost
  port: 6969
max_level: 4
schema_dir: schema
levels:
  - level: 4
    queries: [addMemoryRelation, getMemoryRelations]
`))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if m.Max() != Level4 || m.Target.Host != "localhost" {
		t.Errorf("manifest = %+v", m)
	}
	qs := m.QueriesFor(Level4)
	if len(qs) != 2 || qs[0] != "addMemoryRelation" {
		t.Errorf("override queries = %v", qs)
	}
	// Levels without an override keep their full query set.
	if len(m.QueriesFor(Level0)) != 2 {
		t.Errorf("level 0 queries = %v", m.QueriesFor(Level0))
	}
}

func TestParseManifestRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"bad version":    "version: 7\ntarget: {host: h, port: 1}\nmax_level: 1",
		"no host":        "version: 1\ntarget: {port: 1}\nmax_level: 1",
		"bad level":      "version: 1\ntarget: {host: h, port: 1}\nmax_level: 9",
		"foreign query":  "version: 1\ntarget: {host: h, port: 1}\nmax_level: 2\nlevels:\n  - level: 0\n    queries: [addMemoryRelation]",
		"level too high": "version: 1\ntarget: {host: h, port: 1}\nmax_level: 1\nlevels:\n  - level: 4\n    queries: [detectConflicts]",
	}
	for name, doc := range cases {
		if _, err := ParseManifest([]byte(doc)); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}

type probeDB struct {
	missing map[string]bool
}

func (p *probeDB) Query(ctx context.Context, name string, params, out any) error {
	if p.missing[name] {
		return fmt.Errorf("deploy test: unknown query %s", name)
	}
	return fmt.Errorf("probe %s: %w", name, helix.ErrNotFound)
}

func TestPlanMarksMissingLevels(t *testing.T) {
	db := &probeDB{missing: map[string]bool{
		"getMemoryRelations":   true,
		"searchVectorMemories": true,
	}}

	plan, err := Plan(context.Background(), db, "localhost:6969", Level5)
	if err != nil {
		t.Fatal(err)
	}
	if plan.UpToDate() {
		t.Fatal("plan claims up to date")
	}
	if len(plan.Present) != 4 || len(plan.Missing) != 2 {
		t.Fatalf("plan = %+v", plan)
	}
	if plan.Missing[0] != Level4 || plan.Missing[1] != Level5 {
		t.Errorf("missing = %v", plan.Missing)
	}
}

func TestApplyPostsSchemaAndQueries(t *testing.T) {
	var posted []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posted = append(posted, r.URL.Path)
	}))
	defer srv.Close()

	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"schema/schema.hx", "schema/queries.hx"} {
		w, err := files.Write(context.Background(), name)
		if err != nil {
			t.Fatal(err)
		}
		fmt.Fprintln(w, "N::User { user_id: String }")
		w.Close()
	}

	a := NewApplier(srv.URL, files, nil)
	res, err := a.Apply(context.Background(), "schema", ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.SchemaDeployed || !res.QueriesDeployed {
		t.Fatalf("result = %+v", res)
	}
	if strings.Join(posted, ",") != "/schema,/queries" {
		t.Errorf("posted = %v", posted)
	}
}

func TestApplyQueriesOnly(t *testing.T) {
	var posted []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posted = append(posted, r.URL.Path)
	}))
	defer srv.Close()

	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	w, err := files.Write(context.Background(), "schema/queries.hx")
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprintln(w, "QUERY getUser(user_id: String) =>")
	w.Close()

	a := NewApplier(srv.URL, files, nil)
	res, err := a.Apply(context.Background(), "schema", ApplyOptions{QueriesOnly: true})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.SchemaDeployed || !res.QueriesDeployed {
		t.Fatalf("result = %+v", res)
	}
	if len(posted) != 1 || posted[0] != "/queries" {
		t.Errorf("posted = %v", posted)
	}
}

func TestApplyStopsOnRejectedPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "parse error at line 3", http.StatusBadRequest)
	}))
	defer srv.Close()

	files, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	w, err := files.Write(context.Background(), "schema/schema.hx")
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprintln(w, "garbage")
	w.Close()

	_, applyErr := NewApplier(srv.URL, files, nil).Apply(context.Background(), "schema", ApplyOptions{})
	if applyErr == nil {
		t.Fatal("expected error from rejected schema")
	}
	if !strings.Contains(applyErr.Error(), "HTTP 400") {
		t.Errorf("err = %v", applyErr)
	}
}
