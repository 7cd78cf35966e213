package wifi

import "sort"

// SortNetworks sorts a slice of Network structs in place.
// The sorting order is:
// 1. The network with path current first.
// 2. Favorite networks before others.
// 3. Signal strength (strongest first).
// 4. Fallback to name alphabetically.
func SortNetworks(networks []Network, current string) {
	sort.SliceStable(networks, func(i, j int) bool {
		a := networks[i]
		b := networks[j]

		if current != "" {
			if (a.Path == current) != (b.Path == current) {
				return a.Path == current
			}
		}

		if a.Favorite != b.Favorite {
			return a.Favorite
		}

		if a.Strength != b.Strength {
			return a.Strength > b.Strength
		}

		return a.Name < b.Name
	})
}
