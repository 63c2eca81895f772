package web

import (
	"sync/atomic"
	"time"

	"rcgimbal/internal/ahrs"
	"rcgimbal/internal/motorctl"
)

// Status aggregates the service snapshots served at /api/status. Sources
// may be attached after the server starts.
type Status struct {
	startUnixNano int64
	ahrsSrc       atomic.Value // func() ahrs.Snapshot
	motorSrc      atomic.Value // func() motorctl.Snapshot
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	return s
}

func (s *Status) SetAHRS(src func() ahrs.Snapshot) {
	if src != nil {
		s.ahrsSrc.Store(src)
	}
}

func (s *Status) SetMotor(src func() motorctl.Snapshot) {
	if src != nil {
		s.motorSrc.Store(src)
	}
}

// AttitudeSnapshot is the UI view of the estimator output, in degrees.
// Angles are omitted while the estimate is invalid.
type AttitudeSnapshot struct {
	Valid         bool     `json:"valid"`
	RollDeg       *float64 `json:"roll_deg,omitempty"`
	PitchDeg      *float64 `json:"pitch_deg,omitempty"`
	YawDeg        *float64 `json:"yaw_deg,omitempty"`
	LastUpdateUTC string   `json:"last_update_utc,omitempty"`
}

func AttitudeFromAHRS(snap ahrs.Snapshot) AttitudeSnapshot {
	att := AttitudeSnapshot{Valid: snap.Valid}
	if snap.Valid {
		roll, pitch, yaw := snap.RollDeg, snap.PitchDeg, snap.YawDeg
		att.RollDeg, att.PitchDeg, att.YawDeg = &roll, &pitch, &yaw
	}
	if !snap.UpdatedAt.IsZero() {
		att.LastUpdateUTC = snap.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return att
}

type StatusSnapshot struct {
	Service   string             `json:"service"`
	NowUTC    string             `json:"now_utc"`
	UptimeSec int64              `json:"uptime_sec"`
	CPUTempC  *float64           `json:"cpu_temp_c,omitempty"`
	Attitude  AttitudeSnapshot   `json:"attitude"`
	AHRS      *ahrs.Snapshot     `json:"ahrs,omitempty"`
	Motor     *motorctl.Snapshot `json:"motor,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "rcgimbal",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
	}
	if c, err := readCPUTempC(); err == nil {
		snap.CPUTempC = &c
	}
	if src, ok := s.ahrsSrc.Load().(func() ahrs.Snapshot); ok {
		a := src()
		snap.AHRS = &a
		snap.Attitude = AttitudeFromAHRS(a)
	}
	if src, ok := s.motorSrc.Load().(func() motorctl.Snapshot); ok {
		m := src()
		snap.Motor = &m
	}
	return snap
}
