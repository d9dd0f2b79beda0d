// Package version reports the scribe build, from -ldflags when set and from
// the embedded VCS build settings otherwise.
//
//	go build -ldflags "-X github.com/kbukum/scribe/version.Version=v0.3.0"
package version
