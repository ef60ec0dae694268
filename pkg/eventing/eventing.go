// Package eventing enumerates broker event severities and reasons
package eventing

// Event severities
const (
	NormalType   = "Normal"
	WarningType  = "Warning"
	ErrorType    = "Error"
	CriticalType = "Critical"
)

// Broker event reason list.
// Reasons are short UpperCamelCase tokens meant for switch statements and alerting.
const (
	VolumeProvisioned = "VolumeProvisioned"
	VolumeBound       = "VolumeBound"
	VolumeReleased    = "VolumeReleased"
	VolumeReclaimed   = "VolumeReclaimed"
	VolumeRetained    = "VolumeRetained"
	VolumeOrphaned    = "VolumeOrphaned"
	VolumeExpanded    = "VolumeExpanded"

	ClaimBound          = "ClaimBound"
	ClaimLost           = "ClaimLost"
	ClaimReleased       = "ClaimReleased"
	WaitingForConsumer  = "WaitingForConsumer"
	ClassNotFound       = "ClassNotFound"
	ProvisioningFailed  = "ProvisioningFailed"
	ProvisioningRetried = "ProvisioningRetried"

	BackendUnavailable     = "BackendUnavailable"
	InsufficientCapacity   = "InsufficientCapacity"
	IncompatibleAccessMode = "IncompatibleAccessMode"
	ResizeNotSupported     = "ResizeNotSupported"
)
