package payment

import "time"

// nowUTC is swapped out by tests that need deterministic timestamps.
var nowUTC = func() time.Time { return time.Now().UTC() }
