package lift_simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model"
	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model/messages"
)

// ====== Tunables ======
const (
	// Wind readings are clipped to [0, maxWind] m/s.
	maxWind = 30.0
	// gustChance is the per-sample probability of a 2..5 m/s gust.
	gustChance = 0.05
	// windChill lowers the reported temperature by this much per m/s of wind.
	windChill = 0.1
	// earthRadius in meters.
	earthRadius = 6371000.0
)

// QueueModel estimates the lift line as an Erlang C (M/M/c) queue. The loading points
// are the servers; every carrier on the rope contributes to the service rate.
type QueueModel struct {
	ArrivalRate     float64 // skiers per hour
	LineSpeed       float64 // m/s
	CarrierCapacity int     // seats per carrier
	CarrierSpacing  float64 // meters between carriers
	CarriersLoading int     // carriers loading at once
	SlopeLength     float64 // meters
	Efficiency      float64 // 0..1
	MinLoadingTime  float64 // minutes
}

// NewQueueModel sizes the queue from the lift geometry.
func NewQueueModel(l model.Lift, arrivalRate, lineSpeed, carrierSpacing float64) QueueModel {
	capacity := l.SeatCapacity
	if capacity <= 0 {
		capacity = 4
	}
	return QueueModel{
		ArrivalRate:     arrivalRate,
		LineSpeed:       lineSpeed,
		CarrierCapacity: capacity,
		CarrierSpacing:  carrierSpacing,
		CarriersLoading: 1,
		SlopeLength:     SlopeLength(l),
		Efficiency:      0.7,
		MinLoadingTime:  0.5,
	}
}

// SlopeLength is the straight-line distance between the stations, elevation included.
func SlopeLength(l model.Lift) float64 {
	lat1, lat2 := l.StartLatitude*math.Pi/180, l.EndLatitude*math.Pi/180
	dLat := lat2 - lat1
	dLng := (l.EndLongitude - l.StartLongitude) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	ground := 2 * earthRadius * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return math.Hypot(ground, l.EndElevation-l.StartElevation)
}

// serviceRate is the per-loading-point capacity in skiers per hour.
func (q QueueModel) serviceRate() float64 {
	if q.LineSpeed <= 0 || q.CarrierSpacing <= 0 || q.CarriersLoading <= 0 {
		return 0
	}
	cycle := 2*q.SlopeLength/(q.LineSpeed*3600) + q.MinLoadingTime/60
	carriers := math.Floor(q.SlopeLength / q.CarrierSpacing)
	capacity := carriers * float64(q.CarrierCapacity) / cycle * q.Efficiency
	return capacity / float64(q.CarriersLoading)
}

// Utilization is the offered load over capacity; at 1 or above the queue grows forever.
func (q QueueModel) Utilization() float64 {
	mu := q.serviceRate()
	if mu <= 0 {
		return math.Inf(1)
	}
	return q.ArrivalRate / (float64(q.CarriersLoading) * mu)
}

// WaitProbability is the Erlang C probability that an arriving skier has to queue.
func (q QueueModel) WaitProbability() float64 {
	rho := q.Utilization()
	if rho >= 1 {
		return 1
	}
	c := q.CarriersLoading
	a := q.ArrivalRate / q.serviceRate()
	sum, term := 0.0, 1.0
	for n := 0; n < c; n++ {
		if n > 0 {
			term *= a / float64(n)
		}
		sum += term
	}
	top := term * a / float64(c) / (1 - rho)
	return top / (sum + top)
}

// AverageWait is the expected wait in minutes, +Inf for an overloaded lift.
func (q QueueModel) AverageWait() float64 {
	if q.Utilization() >= 1 {
		return math.Inf(1)
	}
	pc := q.WaitProbability()
	base := pc / (float64(q.CarriersLoading)*q.serviceRate() - q.ArrivalRate) * 60
	return base + q.MinLoadingTime*pc
}

// DataGenerator produces the readings of one lift. Temperature follows a daily sine
// around the mean; wind wanders around its base speed with occasional gusts.
type DataGenerator struct {
	mu         sync.Mutex
	rnd        *rand.Rand
	meanTemp   float64
	amplitude  float64
	offset     float64
	baseWind   float64
	randomness float64
	queue      QueueModel
	lastWind   float64
}

func NewDataGenerator(seed int64, meanTemp, amplitude, baseWind, randomness float64, q QueueModel) *DataGenerator {
	rnd := rand.New(rand.NewSource(seed))
	return &DataGenerator{
		rnd:        rnd,
		meanTemp:   meanTemp,
		amplitude:  amplitude,
		offset:     rnd.Float64()*0.2 - 0.1,
		baseWind:   baseWind,
		randomness: randomness,
		queue:      q,
	}
}

// Temperature at t, with the chill of the last wind sample applied.
func (g *DataGenerator) Temperature(t time.Time) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	day := float64(t.Hour()*3600+t.Minute()*60+t.Second()) / 86400
	smooth := g.meanTemp + g.amplitude*math.Sin(2*math.Pi*day-math.Pi/2)
	v := smooth + g.rnd.NormFloat64()*0.05 + g.offset - windChill*g.lastWind
	return round(v, 2)
}

func (g *DataGenerator) Wind() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.baseWind + g.rnd.NormFloat64()*g.randomness
	if g.rnd.Float64() < gustChance {
		v += 2 + g.rnd.Float64()*3
	}
	v = math.Min(math.Max(v, 0), maxWind)
	g.lastWind = v
	return round(v, 2)
}

// WaitingTime is the rounded-up average wait in minutes. Half steam halves the line
// speed; a stopped lift reports none. ok is false when there is nothing to report.
func (g *DataGenerator) WaitingTime(status model.LiftStatus) (minutes float64, ok bool) {
	q := g.queue
	switch status {
	case messages.StatusStopped, messages.StatusUnknown:
		return 0, false
	case messages.StatusHalfSteam:
		q.LineSpeed /= 2
	}
	g.mu.Lock()
	q.ArrivalRate *= 0.8 + g.rnd.Float64()*0.4
	g.mu.Unlock()

	w := q.AverageWait()
	if math.IsInf(w, 1) || math.IsNaN(w) {
		return 0, false
	}
	return math.Ceil(w), true
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
