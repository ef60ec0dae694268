// Package v1 holds the broker data model: StorageClass, Volume and Claim
package v1

import "time"

// StorageClass is a named template describing how Volumes of a given backend
// kind are created and reclaimed. Immutable once referenced by a live Claim.
type StorageClass struct {
	Name          string            `json:"name" yaml:"name"`
	Backend       string            `json:"backend" yaml:"backend"`
	Parameters    map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	ReclaimPolicy string            `json:"reclaimPolicy" yaml:"reclaimPolicy"`
	BindingMode   string            `json:"bindingMode" yaml:"bindingMode"`
}

// DeepCopy returns a copy of sc that shares no mutable state with the original
func (sc *StorageClass) DeepCopy() *StorageClass {
	copied := *sc
	if sc.Parameters != nil {
		copied.Parameters = make(map[string]string, len(sc.Parameters))
		for k, v := range sc.Parameters {
			copied.Parameters[k] = v
		}
	}
	return &copied
}

// Volume is a concrete unit of provisioned storage
type Volume struct {
	ID           string    `json:"id"`
	StorageClass string    `json:"storageClass"`
	// Size in bytes
	Size        int64    `json:"size"`
	AccessModes []string `json:"accessModes"`
	State       string   `json:"state"`
	// ClaimRefs holds IDs of Claims bound to this Volume. At most one entry
	// unless every bound Claim requested shared modes only (ROX/RWX).
	ClaimRefs []string  `json:"claimRefs,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// DeepCopy returns a copy of v that shares no mutable state with the original
func (v *Volume) DeepCopy() *Volume {
	copied := *v
	copied.AccessModes = append([]string(nil), v.AccessModes...)
	copied.ClaimRefs = append([]string(nil), v.ClaimRefs...)
	return &copied
}

// HasModes reports whether the Volume's access modes are a superset of modes
func (v *Volume) HasModes(modes []string) bool {
	return ContainsModes(v.AccessModes, modes)
}

// Claim is a request for storage with capacity and access mode constraints
type Claim struct {
	ID string `json:"id"`
	// Size in bytes
	Size        int64    `json:"size"`
	AccessModes []string `json:"accessModes"`
	// StorageClass is empty when any matching class is acceptable
	StorageClass string `json:"storageClass,omitempty"`
	State        string `json:"state"`
	VolumeRef    string `json:"volumeRef,omitempty"`
	// PlacementHint is an opaque consumer placement token supplied by an
	// external scheduler. Required to provision waitForFirstConsumer classes.
	PlacementHint string `json:"placementHint,omitempty"`
	// Attempts counts failed provisioning tries against the retry budget.
	// Reset whenever the request parameters change.
	Attempts  int       `json:"attempts,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// DeepCopy returns a copy of c that shares no mutable state with the original
func (c *Claim) DeepCopy() *Claim {
	copied := *c
	copied.AccessModes = append([]string(nil), c.AccessModes...)
	return &copied
}

// SharedOnly reports whether every requested mode permits multi-reader sharing
func (c *Claim) SharedOnly() bool {
	if len(c.AccessModes) == 0 {
		return false
	}
	for _, m := range c.AccessModes {
		if m != ModeROX && m != ModeRWX {
			return false
		}
	}
	return true
}

// ContainsModes reports whether set contains every mode from subset
func ContainsModes(set, subset []string) bool {
	for _, want := range subset {
		found := false
		for _, have := range set {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// IsValidAccessMode reports whether mode is one of the known access modes
func IsValidAccessMode(mode string) bool {
	switch mode {
	case ModeRWO, ModeROX, ModeRWX, ModeRWOP:
		return true
	default:
		return false
	}
}
