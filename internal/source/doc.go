// Package source provides frame feeds for the monitor.
//
// A Feed yields frames in order and returns io.EOF once exhausted. Image
// directories and video files yield pictures that still need detection;
// replay files carry detections recorded earlier and need no detector.
package source
