package seed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jloh02/anchored-amazing-race/internal/models"
)

const (
	fileGroups     = "groups.txt"
	fileAdmins     = "admins.txt"
	fileLeaders    = "gls.json"
	fileChallenges = "challenges.json"
)

// DirSource reads the roster and challenge files from one directory:
//
//	groups.txt       one group name per line
//	admins.txt       one admin username per line
//	gls.json         {"<group id>": ["username", ...]}
//	challenges.json  {"standard": {"<location id>": Location}, "bonus": [Challenge]}
type DirSource struct {
	Dir string
}

type challengeFile struct {
	Standard map[string]models.Location `json:"standard"`
	Bonus    []models.Challenge         `json:"bonus"`
}

func (s DirSource) Load(_ context.Context) (Definitions, error) {
	var d Definitions
	var err error

	if d.Groups, err = readLines(filepath.Join(s.Dir, fileGroups)); err != nil {
		return d, err
	}
	if d.Admins, err = readLines(filepath.Join(s.Dir, fileAdmins)); err != nil {
		return d, err
	}

	raw, err := os.ReadFile(filepath.Join(s.Dir, fileLeaders))
	if err != nil {
		return d, fmt.Errorf("read %s: %w", fileLeaders, err)
	}
	if err := json.Unmarshal(raw, &d.Leaders); err != nil {
		return d, fmt.Errorf("parse %s: %w", fileLeaders, err)
	}

	raw, err = os.ReadFile(filepath.Join(s.Dir, fileChallenges))
	if err != nil {
		return d, fmt.Errorf("read %s: %w", fileChallenges, err)
	}
	var cf challengeFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return d, fmt.Errorf("parse %s: %w", fileChallenges, err)
	}
	for id, loc := range cf.Standard {
		loc.ID = id
		if loc.Name == "" {
			loc.Name = id
		}
		d.Locations = append(d.Locations, loc)
	}
	sort.Slice(d.Locations, func(i, j int) bool { return d.Locations[i].Order < d.Locations[j].Order })
	d.Bonus = cf.Bonus

	return d, d.Validate()
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	out := []string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return out, nil
}
