package sheets

import "strings"

// Leaders tab columns: A group id | B username.
func parseLeaders(values [][]interface{}) map[string][]string {
	out := map[string][]string{}
	for i := 1; i < len(values); i++ {
		row := values[i]
		groupID := strings.TrimSpace(get(row, 0))
		user := strings.TrimPrefix(strings.TrimSpace(get(row, 1)), "@")
		if groupID == "" || user == "" {
			continue
		}
		out[groupID] = append(out[groupID], user)
	}
	return out
}
