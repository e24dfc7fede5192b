// Package archive stores completed final renders outside the scratch
// directory.
//
// Two stores are provided: DirStore copies files into a local directory and
// S3Store uploads them to a bucket. Keys have the form
//
//	<session-id>/final-<n>.exr
//
// and are placed under the store's prefix.
package archive
