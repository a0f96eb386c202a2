package transit

// StopsForRoute returns the stops of the longest trip as the route's
// canonical stop list. The feed has no master list per route, so the trip
// covering the most stops stands in for it. Ties go to the earlier trip.
func StopsForRoute(trips []Trip) []StopRef {
	longest := -1
	for i, t := range trips {
		if longest < 0 || len(t.Stops) > len(trips[longest].Stops) {
			longest = i
		}
	}
	if longest < 0 {
		return []StopRef{}
	}

	refs := make([]StopRef, 0, len(trips[longest].Stops))
	for _, s := range trips[longest].Stops {
		refs = append(refs, s.Ref())
	}
	return refs
}

// StatusesAtStop returns the trips associated with stop: trains at the
// station, then trains heading to it, then trains idling there.
func StatusesAtStop(stop StopRef, statuses []TripStatus) []TripStatus {
	var atStation, enRoute, idling []TripStatus
	for _, s := range statuses {
		switch s.Kind {
		case AtStation:
			if s.LastSeen != nil && s.LastSeen.StopID == stop.ID {
				atStation = append(atStation, s)
			}
		case EnRoute:
			if s.Next != nil && s.Next.StopID == stop.ID {
				enRoute = append(enRoute, s)
			}
		case Idling:
			if s.LastSeen != nil && s.LastSeen.StopID == stop.ID {
				idling = append(idling, s)
			}
		}
	}

	out := make([]TripStatus, 0, len(atStation)+len(enRoute)+len(idling))
	out = append(out, atStation...)
	out = append(out, enRoute...)
	return append(out, idling...)
}

// CountByKind tallies statuses per kind.
func CountByKind(statuses []TripStatus) map[Kind]int {
	counts := make(map[Kind]int, len(kindNames))
	for _, s := range statuses {
		counts[s.Kind]++
	}
	return counts
}
