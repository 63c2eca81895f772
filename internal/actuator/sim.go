package actuator

import (
	"math"
	"sync"
	"time"
)

// SimPlant is a rigid shaft with viscous damping whose torque is
// proportional to the applied voltage. It serves as both Encoder and Stage
// when no motor is attached.
type SimPlant struct {
	mu sync.Mutex

	// Gain is angular acceleration per volt (rad/s² per V).
	Gain float64
	// Damping is the velocity decay rate (1/s).
	Damping float64

	angle    float64
	velocity float64
}

func NewSimPlant() *SimPlant {
	return &SimPlant{Gain: 400, Damping: 8}
}

// Angle reports the shaft position wrapped to [0, 2π), like a single-turn
// magnetic encoder.
func (p *SimPlant) Angle() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := math.Mod(p.angle, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a, nil
}

func (p *SimPlant) Apply(uq float64, dt time.Duration) error {
	s := dt.Seconds()
	if s <= 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acc := p.Gain*uq - p.Damping*p.velocity
	p.velocity += acc * s
	p.angle += p.velocity * s
	return nil
}

// SetAngle places the shaft, in radians, at rest.
func (p *SimPlant) SetAngle(rad float64) {
	p.mu.Lock()
	p.angle = rad
	p.velocity = 0
	p.mu.Unlock()
}

// Position is the unwrapped shaft angle.
func (p *SimPlant) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.angle
}

// HoldStage records the commanded voltage without driving anything. It
// stands in for the power stage when only the encoder is real.
type HoldStage struct {
	mu sync.Mutex
	uq float64
}

func (h *HoldStage) Apply(uq float64, dt time.Duration) error {
	h.mu.Lock()
	h.uq = uq
	h.mu.Unlock()
	return nil
}

func (h *HoldStage) Last() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.uq
}
