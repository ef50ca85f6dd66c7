package optic

import "github.com/optic-dev/optic-go/telemetry"

// Version is the optic SDK version stamped on exported batches.
const Version = telemetry.SDKVersion
