package chain

import "time"

// nowMillis returns the current wall-clock time in milliseconds, the unit
// every timestamp in this package is expressed in.
func nowMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}
