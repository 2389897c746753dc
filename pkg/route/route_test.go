package route

import (
	"testing"

	"github.com/reelsheet/reelsheet/internal/model"
	rserrors "github.com/reelsheet/reelsheet/pkg/errors"
)

func items(types ...model.ItemType) []model.Item {
	out := make([]model.Item, len(types))
	for i, t := range types {
		out[i] = model.Item{Type: t}
	}
	return out
}

func TestPick(t *testing.T) {
	full := Destinations{General: "gen", Travel: "trv", Commerce: "com"}

	tests := []struct {
		name  string
		batch []model.Item
		dst   Destinations
		want  string
	}{
		{"place routes to travel", items(model.TypePlace), full, "trv"},
		{"hotel routes to travel", items(model.TypeHotel), full, "trv"},
		{"product routes to commerce", items(model.TypeProduct), full, "com"},
		{"other routes to general", items(model.TypeOther), full, "gen"},
		{"service routes to general", items(model.TypeService), full, "gen"},
		{"mixed batch prefers travel", items(model.TypeProduct, model.TypePlace), full, "trv"},
		{"product only with both configured picks commerce", items(model.TypeProduct, model.TypeProduct), full, "com"},
		{"travel unset falls back to general", items(model.TypePlace), Destinations{General: "gen"}, "gen"},
		{"product unset falls back to general", items(model.TypeProduct), Destinations{General: "gen", Travel: "trv"}, "gen"},
		{"general unset but travel set", items(model.TypeOther), Destinations{Travel: "trv"}, "trv"},
		{"empty batch routes to general", nil, full, "gen"},
	}

	for _, tt := range tests {
		got, err := Pick(tt.batch, tt.dst)
		if err != nil {
			t.Fatalf("%s: Pick: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: Pick = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestPick_NoDestination(t *testing.T) {
	_, err := Pick(items(model.TypePlace), Destinations{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !rserrors.IsCode(err, rserrors.CodeNoDestination) {
		t.Errorf("code = %v, want %v", rserrors.GetCode(err), rserrors.CodeNoDestination)
	}
}
