package gtfs

// Feed holds the reference tables parsed from a static GTFS zip.
// Only routes and stops are kept: live trips come from GTFS-RT.
type Feed struct {
	Routes       []Route
	Stops        []Stop
	LastModified string // From HTTP response header
	ETag         string // From HTTP response header
}

type Route struct {
	RouteID        string `csv:"route_id"`
	RouteShortName string `csv:"route_short_name"`
	RouteLongName  string `csv:"route_long_name"`
	RouteType      string `csv:"route_type"`
	RouteColor     string `csv:"route_color"`
	RouteTextColor string `csv:"route_text_color"`
	RouteSortOrder string `csv:"route_sort_order"`
}

type Stop struct {
	StopID        string `csv:"stop_id"`
	StopName      string `csv:"stop_name"`
	StopLat       string `csv:"stop_lat"`
	StopLon       string `csv:"stop_lon"`
	LocationType  string `csv:"location_type"`
	ParentStation string `csv:"parent_station"`
}
