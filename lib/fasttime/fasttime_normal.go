//go:build !goexperiment.synctest

package fasttime

import (
	"time"

	"github.com/graintree/graintree/lib/atomicutil"
)

func init() {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for tm := range ticker.C {
			t := uint64(tm.Unix())
			currentTimestamp.Store(t)
		}
	}()
}

var currentTimestamp = func() *atomicutil.Uint64 {
	var x atomicutil.Uint64
	x.Store(uint64(time.Now().Unix()))
	return &x
}()

// UnixTimestamp returns the current unix timestamp in seconds.
//
// It is faster than time.Now().Unix()
func UnixTimestamp() uint64 {
	return currentTimestamp.Load()
}

// UnixDate returns the current unix date (the number of days since the unix epoch).
//
// It is faster than time.Now().Unix() / (24 * 3600)
func UnixDate() uint64 {
	return UnixTimestamp() / (24 * 3600)
}

// UnixHour returns the current unix hour (the number of hours since the unix epoch).
//
// It is faster than time.Now().Unix() / 3600
func UnixHour() uint64 {
	return UnixTimestamp() / 3600
}

// UnixTime returns the current time derived from the cached unix timestamp.
//
// It is faster than time.Now()
func UnixTime() time.Time {
	return time.Unix(int64(UnixTimestamp()), 0)
}
