package semidx

import "sort"

func sortStrings(list []string) []string {
	sort.Strings(list)
	return list
}

func equalSorted(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
