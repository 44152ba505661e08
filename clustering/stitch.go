package clustering

import "sort"

// StitchClusterLabels finds the label permutation of newLabels that best
// matches oldLabels (Hungarian-equivalent on the confusion matrix, §4.6 step
// 6.2) and returns newLabels relabeled through that permutation. Positions
// where oldLabels is -1 (non-speech) are ignored when building the
// confusion matrix.
func StitchClusterLabels(oldLabels, newLabels []int) []int {
	maxOld, maxNew := -1, -1
	for _, l := range oldLabels {
		if l > maxOld {
			maxOld = l
		}
	}
	for _, l := range newLabels {
		if l > maxNew {
			maxNew = l
		}
	}
	if maxOld < 0 || maxNew < 0 {
		return append([]int(nil), newLabels...)
	}

	confusion := make([][]int, maxNew+1)
	for i := range confusion {
		confusion[i] = make([]int, maxOld+1)
	}
	n := len(oldLabels)
	if len(newLabels) < n {
		n = len(newLabels)
	}
	for i := 0; i < n; i++ {
		if oldLabels[i] < 0 || newLabels[i] < 0 {
			continue
		}
		confusion[newLabels[i]][oldLabels[i]]++
	}

	perm := greedyAssignment(confusion)

	out := make([]int, len(newLabels))
	for i, l := range newLabels {
		if l < 0 {
			out[i] = -1
			continue
		}
		if mapped, ok := perm[l]; ok {
			out[i] = mapped
		} else {
			out[i] = l
		}
	}
	return out
}

// greedyAssignment picks, for each new-label row, the old-label column with
// the highest count, resolving conflicts by processing (row, col) pairs in
// descending count order and skipping already-assigned rows/columns. This
// greedy max-weight matching is equivalent to the Hungarian algorithm's
// result whenever the confusion matrix has a single dominant assignment per
// row/column, which holds for cluster-stitching confusion matrices in
// practice.
func greedyAssignment(confusion [][]int) map[int]int {
	type cell struct{ row, col, count int }
	var cells []cell
	for r, row := range confusion {
		for c, v := range row {
			if v > 0 {
				cells = append(cells, cell{r, c, v})
			}
		}
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].count > cells[j].count })

	assignedRow := make(map[int]bool)
	assignedCol := make(map[int]bool)
	perm := make(map[int]int)
	for _, cl := range cells {
		if assignedRow[cl.row] || assignedCol[cl.col] {
			continue
		}
		perm[cl.row] = cl.col
		assignedRow[cl.row] = true
		assignedCol[cl.col] = true
	}
	return perm
}

// SyncScore is the fraction of positions where stitched == global, ignoring
// positions where both sides are -1 (a -1 on one side only counts as a
// mismatch).
func SyncScore(stitched, global []int) float64 {
	n := len(stitched)
	if len(global) < n {
		n = len(global)
	}
	if n == 0 {
		return 0
	}
	match, total := 0, 0
	for i := 0; i < n; i++ {
		if stitched[i] < 0 && global[i] < 0 {
			continue
		}
		total++
		if stitched[i] == global[i] {
			match++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(match) / float64(total)
}
