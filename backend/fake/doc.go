// Package fake provides deterministic, scripted backends. They drive the
// same callbacks a real model would, in a fixed order, so trackers,
// controllers and sessions can be exercised without model weights. The
// "fake" backend name also serves as an offline demo mode.
package fake
