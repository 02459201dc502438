package seed

import (
	"context"
	"testing"

	"github.com/jloh02/anchored-amazing-race/internal/models"
)

func TestDirSourceLoad(t *testing.T) {
	d, err := DirSource{Dir: "testdata/game"}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(d.Groups) != 3 || d.Groups[2] != "Siren" {
		t.Fatalf("unexpected groups %v", d.Groups)
	}
	if len(d.Admins) != 2 {
		t.Fatalf("expected 2 admins, got %v", d.Admins)
	}
	if got := d.Leaders["2"]; len(got) != 2 || got[1] != "bea" {
		t.Fatalf("unexpected leaders for group 2: %v", got)
	}
	if len(d.Locations) != 3 {
		t.Fatalf("expected 3 locations, got %d", len(d.Locations))
	}
	for i, loc := range d.Locations {
		if loc.Order != i {
			t.Fatalf("locations must be sorted by order, got %v at %d", loc.Order, i)
		}
	}
	if d.Locations[0].ID != "toa-payoh" || d.Locations[0].Name != "Toa Payoh" {
		t.Fatalf("unexpected first location %+v", d.Locations[0])
	}
	if d.Locations[0].Challenges[0].Steps[1].NumPhoto != 3 {
		t.Fatal("expected num_photo to be parsed")
	}
	if len(d.Bonus) != 2 {
		t.Fatalf("expected 2 bonus challenges, got %d", len(d.Bonus))
	}
}

func TestDirSourceMissingDir(t *testing.T) {
	if _, err := (DirSource{Dir: "testdata/missing"}).Load(context.Background()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestValidate(t *testing.T) {
	textStep := models.Step{Type: models.StepText, Description: "q", Answer: "a"}
	valid := func() Definitions {
		return Definitions{
			Groups:  []string{"A"},
			Leaders: map[string][]string{"1": {"alice"}},
			Locations: []models.Location{
				{ID: "x", Order: 0, Challenges: []models.Challenge{{Steps: []models.Step{textStep}}}},
				{ID: "y", Order: 1, Challenges: []models.Challenge{{Steps: []models.Step{textStep}}}},
			},
		}
	}

	cases := []struct {
		name    string
		mutate  func(d *Definitions)
		wantErr bool
	}{
		{name: "valid", mutate: func(d *Definitions) {}},
		{name: "no groups", mutate: func(d *Definitions) { d.Groups = nil }, wantErr: true},
		{name: "gap in orders", mutate: func(d *Definitions) { d.Locations[1].Order = 2 }, wantErr: true},
		{name: "duplicate id", mutate: func(d *Definitions) { d.Locations[1].ID = "x" }, wantErr: true},
		{name: "reserved id", mutate: func(d *Definitions) { d.Locations[1].ID = models.BonusLocation }, wantErr: true},
		{name: "unknown group", mutate: func(d *Definitions) { d.Leaders["7"] = []string{"zed"} }, wantErr: true},
		{name: "text without answer", mutate: func(d *Definitions) {
			d.Locations[0].Challenges[0].Steps[0].Answer = ""
		}, wantErr: true},
		{name: "unknown step type", mutate: func(d *Definitions) {
			d.Bonus = []models.Challenge{{Steps: []models.Step{{Type: "Audio"}}}}
		}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := valid()
			tc.mutate(&d)
			err := d.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
