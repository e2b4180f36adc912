package sakuragi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nyiyui.ca/hato/shingo/conn"
	"nyiyui.ca/hato/shingo/tal"
	"nyiyui.ca/hato/shingo/tal/guide"
	"nyiyui.ca/hato/shingo/tal/layout"
)

func TestIndex(t *testing.T) {
	y, err := layout.InitTestbench2()
	if err != nil {
		t.Fatalf("InitTestbench2: %s", err)
	}
	tr := tal.New(y, nil)
	for bi := range y.Blocks {
		tr.SetOccupancy(layout.BlockI(bi), tal.OccupancyClear)
	}
	tr.SetOccupancy(1, tal.OccupancyOccupied)
	g := guide.New(tr, new(conn.Recorder), nil, guide.Conf{})
	if err := g.Register(1, 1, guide.TrainConf{Comment: "EF65"}); err != nil {
		t.Fatalf("register: %s", err)
	}
	if _, err := g.Drive(guide.DriveRequest{Train: 1, Goal: 4}); err != nil {
		t.Fatalf("drive: %s", err)
	}
	s := New(g)

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	body := w.Body.String()
	for _, want := range []string{"EF65", "advancing", "1 → 2 → 3 → 4", "CAUTION", "power on"} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q", want)
		}
	}

	w = httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
}
