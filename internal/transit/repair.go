package transit

// departurePadding is added to the arrival time when the feed reports the
// same instant for arrival and departure.
const departurePadding = 30

// RepairDeparture returns a synthesized departure for stops whose arrival and
// departure are identical, or 0 when no repair applies.
func RepairDeparture(arrival, departure int64) int64 {
	if arrival == 0 || departure == 0 || arrival != departure {
		return 0
	}
	return arrival + departurePadding
}
