package ringramp

import (
	"math"

	"github.com/pkg/errors"
	"libdb.so/lightshow/internal/lights"
)

// DefaultDrag is the drag coefficient given to balls made by the show.
const DefaultDrag = 0.01

// ErrBlackBall is the panic value for a ball that would carry no light.
var ErrBlackBall = errors.New("ball color must not be black")

// Ball is a colored point mass rolling on a ring. Theta is measured from the
// bottom of the ring in radians and always lies in (-π, π].
type Ball struct {
	theta float64
	color lights.Color

	// Omega is the angular velocity in radians per second.
	Omega float64
	// Drag is the quadratic drag coefficient.
	Drag float64

	shown []Contribution
}

// NewBall creates a ball. It panics with ErrBlackBall if color is black.
func NewBall(theta, omega, drag float64, color lights.Color) *Ball {
	b := &Ball{Omega: omega, Drag: drag}
	b.SetTheta(theta)
	b.SetColor(color)
	return b
}

// Theta returns the ball's angle.
func (b *Ball) Theta() float64 { return b.theta }

// SetTheta sets the ball's angle, normalized to (-π, π].
func (b *Ball) SetTheta(theta float64) { b.theta = NormalizeAngle(theta) }

// Color returns the ball's color.
func (b *Ball) Color() lights.Color { return b.color }

// SetColor recolors the ball. It panics with ErrBlackBall if c is black.
func (b *Ball) SetColor(c lights.Color) {
	if c.IsZero() {
		panic(ErrBlackBall)
	}
	b.color = c
}

// Integrate advances the ball by dt seconds under the angular acceleration a
// and its own drag, using the trapezoid rule for the angle.
func (b *Ball) Integrate(dt, a float64) {
	omega0 := b.Omega
	b.Omega = omega0 + (a-b.Drag*omega0*math.Abs(omega0))*dt
	b.SetTheta(b.theta + 0.5*(omega0+b.Omega)*dt)
}

// NormalizeAngle maps theta to the congruent angle in (-π, π].
func NormalizeAngle(theta float64) float64 {
	theta = math.Mod(theta, 2*math.Pi)
	switch {
	case theta > math.Pi:
		theta -= 2 * math.Pi
	case theta <= -math.Pi:
		theta += 2 * math.Pi
	}
	return theta
}
