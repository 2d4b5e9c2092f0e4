package pressure

import (
	"fmt"
	"math"
)

func lerp(start, end, amount float64) float64 {
	return (1-amount)*start + amount*end
}

// threePointLerp interpolates from start to mid over [0, 0.5] and from mid
// to end over [0.5, 1].
func threePointLerp(start, mid, end, amount float64) float64 {
	if amount < 0.5 {
		return lerp(start, mid, amount/0.5)
	}
	return lerp(mid, end, (amount-0.5)/0.5)
}

// Color maps a reading to a green → yellow → red CSS colour. alpha is in
// percent.
func Color(x, y float64, alpha int) string {
	ratio := (x + y) / 2
	hue := threePointLerp(94, 60, 19, ratio)
	saturation := threePointLerp(54, 100, 96, ratio)
	lightness := threePointLerp(59, 87, 67, ratio)
	return fmt.Sprintf("hsla(%d, %d%%, %d%%, %d%%)",
		int(math.Round(hue)), int(math.Round(saturation)), int(math.Round(lightness)), alpha)
}
