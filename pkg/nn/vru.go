package nn

// The VRU (Vulnerable Road User) taxonomy. These are the only class labels
// that leave the post-processor; model-native classes with no mapping into
// this set are dropped.

const (
	VRUPedestrian     = "pedestrian"
	VRUCyclist        = "cyclist"
	VRUMotorcyclist   = "motorcyclist"
	VRUWheelchairUser = "wheelchair_user"
)

// VRUClasses, in canonical order
var VRUClasses = []string{
	VRUPedestrian,
	VRUCyclist,
	VRUMotorcyclist,
	VRUWheelchairUser,
}

// IsVRUClass returns true if label is part of the VRU taxonomy
func IsVRUClass(label string) bool {
	for _, c := range VRUClasses {
		if c == label {
			return true
		}
	}
	return false
}

// DefaultVRURemap maps model-native class names (COCO convention) onto the
// VRU taxonomy. "wheelchair" only appears in custom-trained models, but the
// mapping is harmless for models without that class.
func DefaultVRURemap() map[string]string {
	return map[string]string{
		"person":     VRUPedestrian,
		"bicycle":    VRUCyclist,
		"motorcycle": VRUMotorcyclist,
		"wheelchair": VRUWheelchairUser,
	}
}
