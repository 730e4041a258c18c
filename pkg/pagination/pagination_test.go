package pagination

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(target string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor("/")

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := paramsFor("/?limit=50&offset=10")

	if p.Limit != 50 {
		t.Errorf("expected limit 50, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContext_Page(t *testing.T) {
	p := paramsFor("/?page=3&limit=10")

	if p.Offset != 20 {
		t.Errorf("expected offset 20 for page 3, got %d", p.Offset)
	}

	if p := paramsFor("/?page=3&limit=10&offset=5"); p.Offset != 5 {
		t.Errorf("expected explicit offset to win, got %d", p.Offset)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	if p := paramsFor("/?limit=500"); p.Limit != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_NegativeOffset(t *testing.T) {
	if p := paramsFor("/?offset=-5"); p.Offset != 0 {
		t.Errorf("expected offset 0 for negative input, got %d", p.Offset)
	}
}

func TestNewResponse(t *testing.T) {
	data := []string{"a", "b"}
	resp := NewResponse(data, 50, Params{Limit: 20, Offset: 0})

	if resp.Total != 50 || resp.Limit != 20 || resp.Offset != 0 {
		t.Errorf("unexpected response %+v", resp)
	}
	if !resp.HasMore {
		t.Error("expected HasMore to be true")
	}

	b, _ := json.Marshal(resp)
	var m map[string]interface{}
	json.Unmarshal(b, &m)
	if _, ok := m["hasMore"]; !ok {
		t.Errorf("expected hasMore key, got %s", b)
	}
}

func TestParams_HasNext(t *testing.T) {
	tests := []struct {
		p     Params
		total int
		want  bool
	}{
		{Params{Limit: 10, Offset: 0}, 25, true},
		{Params{Limit: 10, Offset: 20}, 25, false},
		{Params{Limit: 10, Offset: 10}, 20, false},
	}
	for _, tt := range tests {
		if got := tt.p.HasNext(tt.total); got != tt.want {
			t.Errorf("%+v.HasNext(%d) = %v, want %v", tt.p, tt.total, got, tt.want)
		}
	}
}

func TestParams_PreviousOffset(t *testing.T) {
	if got := (Params{Limit: 10, Offset: 5}).PreviousOffset(); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	if got := (Params{Limit: 10, Offset: 30}).PreviousOffset(); got != 20 {
		t.Errorf("expected 20, got %d", got)
	}
	if !(Params{Limit: 10, Offset: 30}).HasPrevious() {
		t.Error("expected HasPrevious")
	}
}

func TestParams_Bounds(t *testing.T) {
	tests := []struct {
		p          Params
		n          int
		start, end int
	}{
		{Params{Limit: 10, Offset: 0}, 25, 0, 10},
		{Params{Limit: 10, Offset: 20}, 25, 20, 25},
		{Params{Limit: 10, Offset: 40}, 25, 25, 25},
	}
	for _, tt := range tests {
		s, e := tt.p.Bounds(tt.n)
		if s != tt.start || e != tt.end {
			t.Errorf("%+v.Bounds(%d) = (%d, %d), want (%d, %d)", tt.p, tt.n, s, e, tt.start, tt.end)
		}
	}
}
