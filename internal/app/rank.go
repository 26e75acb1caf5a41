package app

import "sort"

// RankKols computes a full-roster rank assignment from current PnL figures.
// Ordering is PnL descending, then win rate descending, then name ascending
// so reruns over unchanged data produce identical ranks. Ranks are dense and
// start at 1.
func RankKols(kols []*KOL) map[string]int {
	sorted := make([]*KOL, len(kols))
	copy(sorted, kols)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Pnl != b.Pnl {
			return a.Pnl > b.Pnl
		}
		if a.WinRate != b.WinRate {
			return a.WinRate > b.WinRate
		}
		return a.Name < b.Name
	})

	ranks := make(map[string]int, len(sorted))
	for i, k := range sorted {
		ranks[k.Full] = i + 1
	}
	return ranks
}
