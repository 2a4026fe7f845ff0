// Package detector talks to the external vehicle detector and tracker.
//
// Frames are resized to the configured detector input size, encoded as JPEG
// and posted as multipart forms. The service answers with bounding boxes and,
// for tracking requests, the stable identifier it assigned to each object.
package detector
