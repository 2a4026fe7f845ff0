package parking

// Detection is one tracked object reported by the detector for a frame.
type Detection struct {
	// ID is the upstream tracker identifier.
	ID TrackID
	// Center is the center of the bounding box.
	Center Position
}

// Detections maps track identifiers to their centers for a single frame.
type Detections map[TrackID]Position

// DetectionsFromList converts an ordered detector result into Detections.
// When an identifier repeats, the last entry in the list wins.
func DetectionsFromList(list []Detection) Detections {
	detections := make(Detections, len(list))
	for _, d := range list {
		detections[d.ID] = d.Center
	}

	return detections
}
