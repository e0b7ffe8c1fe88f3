package mapper

import (
	"math"

	"github.com/Alia5/motionpad/motion"
)

// minFieldNorm rejects readings taken in free fall or next to strong
// magnetic interference, where the cross product degenerates.
const minFieldNorm = 0.1

// Heading returns the tilt-compensated azimuth in radians, [0, 2π), of the
// device's Y axis relative to magnetic north. gravity is an accelerometer
// reading and field a magnetometer reading in the same device frame. ok is
// false when the inputs cannot yield a heading.
func Heading(gravity, field motion.Vector3) (azimuth float64, ok bool) {
	if !gravity.IsFinite() || !field.IsFinite() {
		return 0, false
	}
	// East = field × gravity.
	hx := field.Y*gravity.Z - field.Z*gravity.Y
	hy := field.Z*gravity.X - field.X*gravity.Z
	hz := field.X*gravity.Y - field.Y*gravity.X
	normH := math.Sqrt(hx*hx + hy*hy + hz*hz)
	if normH < minFieldNorm {
		return 0, false
	}
	hx, hy, hz = hx/normH, hy/normH, hz/normH

	normA := math.Sqrt(gravity.X*gravity.X + gravity.Y*gravity.Y + gravity.Z*gravity.Z)
	ax, _, az := gravity.X/normA, gravity.Y/normA, gravity.Z/normA

	// North = gravity × east; only its Y component is needed.
	my := az*hx - ax*hz

	azimuth = math.Atan2(hy, my)
	if azimuth < 0 {
		azimuth += 2 * math.Pi
	}
	if azimuth >= 2*math.Pi {
		azimuth = 0
	}
	return azimuth, true
}
