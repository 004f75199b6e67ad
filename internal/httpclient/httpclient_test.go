package httpclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dnitsch/okta-cli-auth/internal/httpclient"
)

func newTestClient(t *testing.T) *httpclient.Client {
	t.Helper()
	client, err := httpclient.New()
	if err != nil {
		t.Fatal(err)
	}
	return client.WithRetryInterval(time.Millisecond)
}

func Test_GetWithRetry_recovers_from_transient_failures(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`ok`))
	}))
	defer ts.Close()

	res, err := newTestClient(t).GetWithRetry(context.TODO(), ts.URL, nil, nil, httpclient.AcceptJSON)
	if err != nil {
		t.Fatalf("got %v, wanted nil", err)
	}
	if string(res.Body) != "ok" {
		t.Errorf("got %s, wanted ok", res.Body)
	}
	if calls != 3 {
		t.Errorf("got %d calls, wanted 3", calls)
	}
}

func Test_GetWithRetry_gives_up_after_four_attempts(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := newTestClient(t).GetWithRetry(context.TODO(), ts.URL, nil, nil, httpclient.AcceptJSON)
	if err == nil {
		t.Fatal("got nil, wanted an error")
	}
	// initial attempt plus 3 retries
	if calls != 4 {
		t.Errorf("got %d calls, wanted 4", calls)
	}
}

func Test_Get_passes_params_and_headers(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sessionToken") != "tok-1" {
			t.Errorf("got query %s, wanted sessionToken", r.URL.RawQuery)
		}
		if r.Header.Get("x-custom") != "val" {
			t.Errorf("got header %s, wanted val", r.Header.Get("x-custom"))
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("got accept %s, wanted application/json", r.Header.Get("Accept"))
		}
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	res, err := newTestClient(t).Get(context.TODO(), ts.URL,
		url.Values{"sessionToken": {"tok-1"}},
		map[string]string{"x-custom": "val"},
		httpclient.AcceptJSON)
	if err != nil {
		t.Fatalf("got %v, wanted nil", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("got %d, wanted 200", res.StatusCode)
	}
}

func Test_Result_carries_final_url_after_redirects(t *testing.T) {
	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	defer ts.Close()

	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, ts.URL+"/final?workflowResultHandle=wrh-1", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`done`))
	})

	res, err := newTestClient(t).PostForm(context.TODO(), ts.URL+"/start", url.Values{"a": {"b"}}, httpclient.AcceptHTML)
	if err != nil {
		t.Fatalf("got %v, wanted nil", err)
	}
	if res.URL.Path != "/final" {
		t.Errorf("got %s, wanted /final", res.URL.Path)
	}
	if res.URL.Query().Get("workflowResultHandle") != "wrh-1" {
		t.Errorf("got %s, wanted wrh-1", res.URL.RawQuery)
	}
}

func Test_PostJSON_sets_content_type(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("got %s, wanted application/json", r.Header.Get("Content-Type"))
		}
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	if _, err := newTestClient(t).PostJSON(context.TODO(), ts.URL, map[string]string{"k": "v"}); err != nil {
		t.Fatalf("got %v, wanted nil", err)
	}
}
