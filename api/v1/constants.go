package v1

// Claim states
const (
	ClaimPending = "pending"
	ClaimBound   = "bound"
	ClaimLost    = "lost"
)

// Volume states
const (
	VolumeAvailable = "available"
	VolumeBound     = "bound"
	VolumeReleased  = "released"
	VolumeFailed    = "failed"
)

// Backend kinds
const (
	KindBlock     = "block"
	KindFile      = "file"
	KindObject    = "object"
	KindEphemeral = "ephemeral"
)

// Access modes
const (
	ModeRWO  = "RWO"
	ModeROX  = "ROX"
	ModeRWX  = "RWX"
	ModeRWOP = "RWOP"
)

// Reclaim policies
const (
	ReclaimDelete = "delete"
	ReclaimRetain = "retain"
)

// Volume binding modes
const (
	BindingImmediate            = "immediate"
	BindingWaitForFirstConsumer = "waitForFirstConsumer"
)

// StorageClassAny means that a Claim accepts a Volume of any StorageClass
const StorageClassAny = ""
