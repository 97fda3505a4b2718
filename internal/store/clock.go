package store

import "time"

// timeNow is indirected so repository tests can freeze time; production
// code never overrides it.
var timeNow = time.Now
