package loyalty

import "sort"

// SortTiers orders tiers ascending by points threshold, the catalog's
// canonical listing order.
func SortTiers(tiers []Tier) {
	sort.Slice(tiers, func(i, j int) bool {
		if tiers[i].PointsThreshold != tiers[j].PointsThreshold {
			return tiers[i].PointsThreshold < tiers[j].PointsThreshold
		}
		return tiers[i].Level.Rank() < tiers[j].Level.Rank()
	})
}

// TierFor returns the active tier with the highest threshold not exceeding
// lifetimePoints. The second result is false when the catalog has no active
// tier the customer qualifies for (an empty or misconfigured catalog).
func TierFor(lifetimePoints int64, tiers []Tier) (Tier, bool) {
	var best Tier
	found := false
	for _, t := range tiers {
		if !t.Active || t.PointsThreshold > lifetimePoints {
			continue
		}
		if !found || t.PointsThreshold > best.PointsThreshold {
			best = t
			found = true
		}
	}
	return best, found
}

// NextThreshold returns the threshold the customer is working toward: the
// next active tier's threshold, or the current tier's own threshold when the
// customer already sits at the top of the catalog.
func NextThreshold(current Tier, tiers []Tier) int64 {
	next := current.PointsThreshold
	for _, t := range tiers {
		if !t.Active || t.PointsThreshold <= current.PointsThreshold {
			continue
		}
		if next == current.PointsThreshold || t.PointsThreshold < next {
			next = t.PointsThreshold
		}
	}
	return next
}

// ValidateCatalog checks the tier catalog invariants over the active tiers:
// thresholds strictly increasing along the tier order, and exactly one entry
// tier at threshold 0.
func ValidateCatalog(tiers []Tier) error {
	active := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		if t.Active {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		return nil
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].Level.Rank() < active[j].Level.Rank()
	})
	entryTiers := 0
	for i, t := range active {
		if !t.Level.Valid() {
			return errInvalidLevel(t.Level)
		}
		if t.PointsThreshold == 0 {
			entryTiers++
		}
		if i > 0 && t.PointsThreshold <= active[i-1].PointsThreshold {
			return errThresholdOrder(active[i-1].Level, t.Level)
		}
	}
	if entryTiers != 1 {
		return errNoEntryTier(entryTiers)
	}
	return nil
}
