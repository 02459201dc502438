package sheets

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jloh02/anchored-amazing-race/internal/models"
	"github.com/jloh02/anchored-amazing-race/internal/seed"
)

const (
	SheetGroups     = "Groups"
	SheetAdmins     = "Admins"
	SheetLeaders    = "Leaders"
	SheetChallenges = "Challenges"
	SheetBonus      = "Bonus"
)

func (c *Client) readAll(ctx context.Context, sheet string) ([][]interface{}, error) {
	resp, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, sheet+"!A:Z").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return resp.Values, nil
}

// Load reads every tab and returns validated definitions.
func (c *Client) Load(ctx context.Context) (seed.Definitions, error) {
	var d seed.Definitions

	groups, err := c.readAll(ctx, SheetGroups)
	if err != nil {
		return d, err
	}
	admins, err := c.readAll(ctx, SheetAdmins)
	if err != nil {
		return d, err
	}
	leaders, err := c.readAll(ctx, SheetLeaders)
	if err != nil {
		return d, err
	}
	challenges, err := c.readAll(ctx, SheetChallenges)
	if err != nil {
		return d, err
	}
	bonus, err := c.readAll(ctx, SheetBonus)
	if err != nil {
		return d, err
	}

	d.Groups = firstColumn(groups)
	d.Admins = firstColumn(admins)
	d.Leaders = parseLeaders(leaders)
	if d.Locations, err = parseLocations(challenges); err != nil {
		return d, err
	}
	if d.Bonus, err = parseBonus(bonus); err != nil {
		return d, err
	}
	return d, d.Validate()
}

// ---------- Groups / Admins ----------

func firstColumn(values [][]interface{}) []string {
	out := []string{}
	// header row at index 0
	for i := 1; i < len(values); i++ {
		v := strings.TrimSpace(get(values[i], 0))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ---------- Challenges ----------

// Challenges tab columns:
// A location id | B location name | C order | D challenge # | E challenge description |
// F step # | G type | H step description | I answer | J num_photo | K media | L rotating media (comma separated)
func parseLocations(values [][]interface{}) ([]models.Location, error) {
	byID := map[string]*models.Location{}
	for i := 1; i < len(values); i++ {
		row := values[i]
		id := strings.TrimSpace(get(row, 0))
		if id == "" {
			continue
		}
		loc := byID[id]
		if loc == nil {
			order, err := strconv.Atoi(strings.TrimSpace(get(row, 2)))
			if err != nil {
				return nil, fmt.Errorf("%s row %d: bad order %q", SheetChallenges, i+1, get(row, 2))
			}
			loc = &models.Location{ID: id, Name: strings.TrimSpace(get(row, 1)), Order: order}
			if loc.Name == "" {
				loc.Name = id
			}
			byID[id] = loc
		}
		var err error
		if loc.Challenges, err = placeStep(loc.Challenges, row, 3); err != nil {
			return nil, fmt.Errorf("%s row %d: %w", SheetChallenges, i+1, err)
		}
	}

	out := make([]models.Location, 0, len(byID))
	for _, loc := range byID {
		out = append(out, *loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// Bonus tab columns:
// A challenge # | B challenge description | C step # | D type | E step description |
// F answer | G num_photo | H media | I rotating media
func parseBonus(values [][]interface{}) ([]models.Challenge, error) {
	var out []models.Challenge
	for i := 1; i < len(values); i++ {
		row := values[i]
		if strings.TrimSpace(get(row, 0)) == "" {
			continue
		}
		var err error
		if out, err = placeStep(out, row, 0); err != nil {
			return nil, fmt.Errorf("%s row %d: %w", SheetBonus, i+1, err)
		}
	}
	return out, nil
}

// placeStep reads "challenge #, challenge description, step #, step..." from
// row starting at col and stores the step at its 1-based position.
func placeStep(challs []models.Challenge, row []interface{}, col int) ([]models.Challenge, error) {
	chNum, err := strconv.Atoi(strings.TrimSpace(get(row, col)))
	if err != nil || chNum < 1 {
		return nil, fmt.Errorf("bad challenge number %q", get(row, col))
	}
	stepNum, err := strconv.Atoi(strings.TrimSpace(get(row, col+2)))
	if err != nil || stepNum < 1 {
		return nil, fmt.Errorf("bad step number %q", get(row, col+2))
	}
	numPhoto := 0
	if raw := strings.TrimSpace(get(row, col+6)); raw != "" {
		if numPhoto, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("bad photo count %q", raw)
		}
	}

	for len(challs) < chNum {
		challs = append(challs, models.Challenge{})
	}
	ch := &challs[chNum-1]
	if desc := strings.TrimSpace(get(row, col+1)); desc != "" {
		ch.Description = desc
	}
	for len(ch.Steps) < stepNum {
		ch.Steps = append(ch.Steps, models.Step{})
	}
	ch.Steps[stepNum-1] = models.Step{
		Type:          models.StepType(strings.TrimSpace(get(row, col+3))),
		Description:   get(row, col+4),
		Answer:        strings.TrimSpace(get(row, col+5)),
		NumPhoto:      numPhoto,
		Media:         strings.TrimSpace(get(row, col+7)),
		RotatingMedia: splitList(get(row, col+8)),
	}
	return challs, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ---------- helpers ----------

func get(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	return fmt.Sprint(row[idx])
}
