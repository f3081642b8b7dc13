// Package glove describes the sensor glove: its fingers, wire protocol,
// sensitivity profiles and configuration.
package glove

// NumFingers is the number of flex sensors on the glove.
const NumFingers = 5

// FingerName identifies one joint chain of the hand.
type FingerName string

// Finger names in sensor order (joint 0 through 4 on the wire).
const (
	Index  FingerName = "index"
	Middle FingerName = "middle"
	Ring   FingerName = "ring"
	Pinky  FingerName = "pinky"
	Thumb  FingerName = "thumb"
)

// AllFingers returns all finger names in sensor order.
func AllFingers() []FingerName {
	return []FingerName{
		Index,
		Middle,
		Ring,
		Pinky,
		Thumb,
	}
}

// Label returns the human readable label used in captures and logs.
func (f FingerName) Label() string {
	switch f {
	case Index:
		return "Index"
	case Middle:
		return "Middle"
	case Ring:
		return "Ring"
	case Pinky:
		return "Pinky"
	case Thumb:
		return "Thumb"
	}
	return string(f)
}

// FingerIndex returns the sensor position of a finger, or -1 if unknown.
func FingerIndex(name FingerName) int {
	for i, f := range AllFingers() {
		if f == name {
			return i
		}
	}
	return -1
}
