package confluence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPaginateStopsOnShortPage(t *testing.T) {
	source := []int{1, 2, 3, 4, 5}
	var calls []int

	got, err := Paginate(context.Background(), 2, func(ctx context.Context, start, limit int) (Batch[int], error) {
		calls = append(calls, start)
		end := min(start+limit, len(source))
		return Batch[int]{Items: source[start:end], Limit: limit}, nil
	})
	if err != nil {
		t.Fatalf("Paginate: %v", err)
	}
	if diff := cmp.Diff(source, got); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 2, 4}, calls); diff != "" {
		t.Fatalf("offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestPaginateStopsOnEmptyPage(t *testing.T) {
	var calls int
	got, err := Paginate(context.Background(), 2, func(ctx context.Context, start, limit int) (Batch[string], error) {
		calls++
		if start >= 4 {
			// An empty page ends the listing even if the server claims there's more.
			return Batch[string]{Next: true}, nil
		}
		return Batch[string]{Items: []string{"a", "b"}}, nil
	})
	if err != nil {
		t.Fatalf("Paginate: %v", err)
	}
	if len(got) != 4 || calls != 3 {
		t.Fatalf("got %d items in %d calls", len(got), calls)
	}
}

func TestPaginateReturnsPartialResultsOnError(t *testing.T) {
	boom := errors.New("boom")
	got, err := Paginate(context.Background(), 1, func(ctx context.Context, start, limit int) (Batch[int], error) {
		if start == 2 {
			return Batch[int]{}, boom
		}
		return Batch[int]{Items: []int{start}}, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if diff := cmp.Diff([]int{0, 1}, got); diff != "" {
		t.Fatalf("partial results mismatch (-want +got):\n%s", diff)
	}
}

func TestPaginateUsesTheServersPageSize(t *testing.T) {
	source := []int{1, 2, 3, 4, 5}
	var calls []int

	// We ask for 4, the server never hands out more than 2 and says so.
	got, err := Paginate(context.Background(), 4, func(ctx context.Context, start, limit int) (Batch[int], error) {
		calls = append(calls, start)
		end := min(start+2, len(source))
		return Batch[int]{Items: source[start:end], Limit: 2}, nil
	})
	if err != nil {
		t.Fatalf("Paginate: %v", err)
	}
	if diff := cmp.Diff(source, got); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 2, 4}, calls); diff != "" {
		t.Fatalf("offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestPaginateFollowsNextLink(t *testing.T) {
	source := []int{1, 2, 3, 4, 5}
	var calls int

	// Short pages without a usable limit; only the next link says whether to go on.
	got, err := Paginate(context.Background(), 10, func(ctx context.Context, start, limit int) (Batch[int], error) {
		calls++
		end := min(start+2, len(source))
		return Batch[int]{Items: source[start:end], Next: end < len(source)}, nil
	})
	if err != nil {
		t.Fatalf("Paginate: %v", err)
	}
	if diff := cmp.Diff(source, got); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestListPagesInSpace(t *testing.T) {
	const total = 5
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/rest/api/content" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("spaceKey") != "OPS" || q.Get("type") != "page" || q.Get("status") != "current" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("expand") != "body.storage,version,space,ancestors,children.page" {
			t.Errorf("unexpected expand %q", q.Get("expand"))
		}
		start, _ := strconv.Atoi(q.Get("start"))
		limit, _ := strconv.Atoi(q.Get("limit"))

		var list PageList
		for i := start; i < total && i < start+limit; i++ {
			list.Results = append(list.Results, Page{ID: strconv.Itoa(100 + i), Title: fmt.Sprintf("Page %d", i)})
		}
		list.Start, list.Limit, list.Size = start, limit, len(list.Results)
		_ = json.NewEncoder(w).Encode(list)
	}))
	defer srv.Close()

	api := newTestAPI(t, srv, func(o *Options) { o.PageLimit = 2 })

	pages, err := api.ListPagesInSpace(context.Background(), "OPS")
	if err != nil {
		t.Fatalf("ListPagesInSpace: %v", err)
	}
	var ids []string
	for _, p := range pages {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]string{"100", "101", "102", "103", "104"}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}
}

func TestListPagesInSpaceWhenServerCapsPageSize(t *testing.T) {
	const (
		total     = 5
		serverCap = 2
	)
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		q := r.URL.Query()
		if q.Get("limit") != "4" {
			t.Errorf("expected to ask for 4, got %q", q.Get("limit"))
		}
		start, _ := strconv.Atoi(q.Get("start"))

		var list PageList
		for i := start; i < total && i < start+serverCap; i++ {
			list.Results = append(list.Results, Page{ID: strconv.Itoa(100 + i)})
		}
		list.Start, list.Limit, list.Size = start, serverCap, len(list.Results)
		if start+serverCap < total {
			list.Links.Next = fmt.Sprintf("/rest/api/content?start=%d", start+serverCap)
		}
		_ = json.NewEncoder(w).Encode(list)
	}))
	defer srv.Close()

	api := newTestAPI(t, srv, func(o *Options) { o.PageLimit = 4 })

	pages, err := api.ListPagesInSpace(context.Background(), "OPS")
	if err != nil {
		t.Fatalf("ListPagesInSpace: %v", err)
	}
	if len(pages) != total {
		t.Fatalf("expected %d pages, got %d", total, len(pages))
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}
}

func TestGetPageByTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("title") == "Runbook" {
			fmt.Fprint(w, `{"results":[{"id":"9","title":"Runbook","space":{"key":"OPS"}}],"size":1}`)
			return
		}
		fmt.Fprint(w, `{"results":[],"size":0}`)
	}))
	defer srv.Close()

	api := newTestAPI(t, srv, nil)

	page, err := api.GetPageByTitle(context.Background(), "OPS", "Runbook")
	if err != nil {
		t.Fatalf("GetPageByTitle: %v", err)
	}
	if page.ID != "9" || page.SpaceKey() != "OPS" {
		t.Fatalf("unexpected page %+v", page)
	}

	_, err = api.GetPageByTitle(context.Background(), "OPS", "Nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchPagesSendsCQL(t *testing.T) {
	var cql string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cql = r.URL.Query().Get("cql")
		fmt.Fprint(w, `{"results":[{"id":"1"}]}`)
	}))
	defer srv.Close()

	api := newTestAPI(t, srv, nil)

	pages, err := api.SearchPages(context.Background(), `lastmodified >= "2024-01-01" AND type=page`)
	if err != nil {
		t.Fatalf("SearchPages: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected one page, got %d", len(pages))
	}
	if cql != `lastmodified >= "2024-01-01" AND type=page` {
		t.Fatalf("server saw cql %q", cql)
	}
}

func TestListAllSpaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") != "global" {
			t.Errorf("personal spaces should be excluded, query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"results":[{"id":1,"key":"OPS","name":"Operations"},{"id":2,"key":"DEV","name":"Development"}]}`)
	}))
	defer srv.Close()

	api := newTestAPI(t, srv, nil)

	spaces, err := api.ListAllSpaces(context.Background(), false)
	if err != nil {
		t.Fatalf("ListAllSpaces: %v", err)
	}
	want := map[string]Space{
		"OPS": {ID: 1, Key: "OPS", Name: "Operations"},
		"DEV": {ID: 2, Key: "DEV", Name: "Development"},
	}
	if diff := cmp.Diff(want, spaces); diff != "" {
		t.Fatalf("spaces mismatch (-want +got):\n%s", diff)
	}
}

func TestChildIDs(t *testing.T) {
	var p Page
	if err := json.Unmarshal([]byte(`{"id":"1","children":{"page":{"results":[{"id":"2"},{"id":""},{"id":"3"}]}}}`), &p); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"2", "3"}, p.ChildIDs()); diff != "" {
		t.Fatalf("children mismatch (-want +got):\n%s", diff)
	}
	if (Page{}).ChildIDs() != nil {
		t.Fatalf("a page without expansion has no children")
	}
}
