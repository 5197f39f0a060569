// Package gpxio parses GPX 1.1 track/route data into geo.Points and
// resolves large tracks stored out-of-band in Cloud Storage, the way
// the teacher's pkg/domain/activity package resolves an
// EnrichedActivityEvent's GCS-offloaded payload (spec §6 "GPX input
// format", SPEC_FULL.md DOMAIN STACK storage.Storage row).
package gpxio

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"

	"github.com/trailtime/core/pkg/geo"
)

// gpxFile mirrors just the fields of the GPX 1.1 schema this service
// consumes: track and route points, each optionally carrying elevation.
type gpxFile struct {
	XMLName xml.Name   `xml:"gpx"`
	Tracks  []gpxTrack `xml:"trk"`
	Routes  []gpxRoute `xml:"rte"`
}

type gpxTrack struct {
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxRoute struct {
	Points []gpxPoint `xml:"rtept"`
}

type gpxPoint struct {
	LatDeg float64  `xml:"lat,attr"`
	LonDeg float64  `xml:"lon,attr"`
	ElevM  *float64 `xml:"ele"`
}

// ErrNoPoints is returned when a GPX document parses cleanly but yields
// zero track/route points (spec §6: "files with no points are rejected").
var ErrNoPoints = fmt.Errorf("gpxio: no points found in GPX data")

// Parse reads UTF-8 GPX 1.1 bytes and returns the (lat, lon, elevation)
// triples of every track point, falling back to route points when the
// file has no tracks. Missing <ele> elements default to 0m.
func Parse(data []byte) ([]geo.Point, error) {
	var doc gpxFile
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("gpxio: parse GPX: %w", err)
	}

	var out []geo.Point
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				out = append(out, p.toGeoPoint())
			}
		}
	}
	if len(out) == 0 {
		for _, rte := range doc.Routes {
			for _, p := range rte.Points {
				out = append(out, p.toGeoPoint())
			}
		}
	}

	if len(out) == 0 {
		return nil, ErrNoPoints
	}
	return out, nil
}

func (p gpxPoint) toGeoPoint() geo.Point {
	elev := 0.0
	if p.ElevM != nil {
		elev = *p.ElevM
	}
	return geo.Point{LatDeg: p.LatDeg, LonDeg: p.LonDeg, ElevM: elev}
}

// gcsURIPattern matches gs://bucket/object, identical in shape to the
// teacher's pkg/domain/activity.ParseGCSURI.
var gcsURIPattern = regexp.MustCompile(`^gs://([^/]+)/(.+)$`)

// ParseGCSURI extracts the bucket and object path from a gs:// URI.
func ParseGCSURI(uri string) (bucket, object string, ok bool) {
	m := gcsURIPattern.FindStringSubmatch(uri)
	if len(m) != 3 {
		return "", "", false
	}
	return m[1], m[2], true
}

// BlobStore is the minimal Cloud Storage surface this package needs;
// store.GCSBlobStore satisfies it.
type BlobStore interface {
	Read(ctx context.Context, bucket, object string) ([]byte, error)
}

// Resolve returns inline GPX bytes as-is, or — when the caller passed a
// gs:// URI instead of inline bytes — fetches the blob from Cloud
// Storage first. This lets predict_hike/predict_trail_run accept either
// inline GPX bytes or a reference to a large track file, per
// SPEC_FULL.md's storage.Storage wiring. GPS traces are still never
// *persisted* by this service; resolving a caller-supplied URI is not
// the same as this service writing one (spec §3 non-goal).
func Resolve(ctx context.Context, inlineOrURI string, store BlobStore) ([]byte, error) {
	bucket, object, ok := ParseGCSURI(inlineOrURI)
	if !ok {
		// Not a gs:// URI: treat the input as inline GPX bytes.
		return []byte(inlineOrURI), nil
	}
	data, err := store.Read(ctx, bucket, object)
	if err != nil {
		return nil, fmt.Errorf("gpxio: fetch gs://%s/%s: %w", bucket, object, err)
	}
	return data, nil
}

// ReadAll is a convenience wrapper for callers that already have an
// io.Reader (e.g. a multipart upload) instead of a []byte.
func ReadAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gpxio: read GPX stream: %w", err)
	}
	return data, nil
}
