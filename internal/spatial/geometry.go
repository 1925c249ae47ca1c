package spatial

import (
	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// Point represents a 2D point with latitude and longitude
type Point struct {
	Lat float64
	Lon float64
}

// Bounds is a latitude/longitude rectangle in degrees
type Bounds struct {
	MinLat, MinLon float64
	MaxLat, MaxLon float64
}

// Centroid calculates the geographic centroid of a set of points
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}

	var sumLat, sumLon float64
	for _, p := range points {
		sumLat += p.Lat
		sumLon += p.Lon
	}

	return Point{
		Lat: sumLat / float64(len(points)),
		Lon: sumLon / float64(len(points)),
	}
}

// PathLength calculates the total length of a path in meters
func PathLength(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}

	var totalDist float64
	for i := 1; i < len(points); i++ {
		totalDist += HaversineDistance(points[i-1].Lat, points[i-1].Lon, points[i].Lat, points[i].Lon)
	}
	return totalDist
}

// BoundsAround returns the rectangle enclosing a circle of radius meters
func BoundsAround(lat, lon, radiusMeters float64) Bounds {
	north, _ := DestinationPoint(lat, lon, 0, radiusMeters)
	south, _ := DestinationPoint(lat, lon, 180, radiusMeters)
	_, east := DestinationPoint(lat, lon, 90, radiusMeters)
	_, west := DestinationPoint(lat, lon, 270, radiusMeters)
	return Bounds{MinLat: south, MinLon: west, MaxLat: north, MaxLon: east}
}

// NewBounds builds bounds from two corners given in any order
func NewBounds(lat1, lon1, lat2, lon2 float64) Bounds {
	b := Bounds{MinLat: lat1, MinLon: lon1, MaxLat: lat2, MaxLon: lon2}
	if b.MinLat > b.MaxLat {
		b.MinLat, b.MaxLat = b.MaxLat, b.MinLat
	}
	if b.MinLon > b.MaxLon {
		b.MinLon, b.MaxLon = b.MaxLon, b.MinLon
	}
	return b
}

// Contains reports whether the point lies inside the bounds, edges included
func (b Bounds) Contains(lat, lon float64) bool {
	rect := s2.Rect{
		Lat: r1.Interval{Lo: degrees(b.MinLat), Hi: degrees(b.MaxLat)},
		Lng: s1.IntervalFromEndpoints(degrees(b.MinLon), degrees(b.MaxLon)),
	}
	return rect.ContainsLatLng(s2.LatLngFromDegrees(lat, lon))
}

func degrees(d float64) float64 {
	return (s1.Angle(d) * s1.Degree).Radians()
}
