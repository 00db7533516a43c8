// Package metrics exports device snapshots as Prometheus metrics.
//
// The collector reads the latest snapshot of every tracked device at scrape
// time; it never triggers a device request.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/muurk/mypv/internal/coordinator"
	"github.com/muurk/mypv/internal/entity"
	"github.com/muurk/mypv/internal/snapshot"
)

const namespace = "mypv"

// Device is what the collector needs from one polled device.
// *bridge.Handle implements it.
type Device interface {
	Host() string
	Name() string
	Snapshot() snapshot.Snapshot
	Entities() *entity.Set
	OnUpdate(fn coordinator.UpdateFunc) (unsubscribe func())
}

// Collector implements prometheus.Collector for my-PV devices
type Collector struct {
	mu      sync.Mutex
	devices []Device
	unsubs  []func()

	up          *prometheus.Desc
	info        *prometheus.Desc
	sensor      *prometheus.Desc
	boostActive *prometheus.Desc
	mode        *prometheus.Desc
	lastSuccess *prometheus.Desc
	cycles      *prometheus.Desc

	failures *prometheus.CounterVec
}

// NewCollector creates a collector tracking devices
func NewCollector(devices ...Device) *Collector {
	labels := []string{"host", "name"}
	c := &Collector{
		up: prometheus.NewDesc(
			namespace+"_up",
			"Whether the last data fetch succeeded (1=yes, 0=no)",
			labels, nil,
		),
		info: prometheus.NewDesc(
			namespace+"_info",
			"Device identity",
			[]string{"host", "name", "serial", "model", "firmware"}, nil,
		),
		sensor: prometheus.NewDesc(
			namespace+"_sensor_value",
			"Numeric sensor value in its display unit",
			[]string{"host", "name", "sensor", "unit"}, nil,
		),
		boostActive: prometheus.NewDesc(
			namespace+"_boost_active",
			"Hot water boost is running (1=yes, 0=no)",
			labels, nil,
		),
		mode: prometheus.NewDesc(
			namespace+"_device_mode",
			"Device mode switch state (1=on, 0=off)",
			labels, nil,
		),
		lastSuccess: prometheus.NewDesc(
			namespace+"_last_success_timestamp_seconds",
			"Unix time of the last successful data fetch",
			labels, nil,
		),
		cycles: prometheus.NewDesc(
			namespace+"_cycles_total",
			"Published poll cycles and forced refreshes",
			labels, nil,
		),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_failures_total",
			Help:      "Cycles whose data fetch failed",
		}, labels),
	}
	for _, d := range devices {
		c.Track(d)
	}
	return c
}

// Track adds a device and counts its failed updates.
func (c *Collector) Track(d Device) {
	host, name := d.Host(), d.Name()
	// Initialize the series so it is exported before the first failure.
	c.failures.WithLabelValues(host, name)

	unsub := d.OnUpdate(func(u coordinator.Update) {
		if u.Err != nil {
			c.failures.WithLabelValues(host, name).Inc()
		}
	})

	c.mu.Lock()
	c.devices = append(c.devices, d)
	c.unsubs = append(c.unsubs, unsub)
	c.mu.Unlock()
}

// Close stops counting updates.
func (c *Collector) Close() {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.up
	ch <- c.info
	ch <- c.sensor
	ch <- c.boostActive
	ch <- c.mode
	ch <- c.lastSuccess
	ch <- c.cycles
	c.failures.Describe(ch)
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	devices := append([]Device(nil), c.devices...)
	c.mu.Unlock()

	for _, d := range devices {
		c.collectDevice(d, ch)
	}
	c.failures.Collect(ch)
}

func (c *Collector) collectDevice(d Device, ch chan<- prometheus.Metric) {
	snap := d.Snapshot()
	host, name := d.Host(), d.Name()

	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, boolValue(snap.Healthy()), host, name)
	ch <- prometheus.MustNewConstMetric(c.cycles, prometheus.CounterValue, float64(snap.Cycle), host, name)
	if snap.Empty() {
		return
	}

	if snap.Identity.Known() {
		fw, _ := snap.Info.String("fwversion")
		ch <- prometheus.MustNewConstMetric(c.info, prometheus.GaugeValue, 1,
			host, name, snap.Identity.Serial, snap.Identity.Model, fw)
	}
	if !snap.LastSuccessAt.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastSuccess, prometheus.GaugeValue,
			float64(snap.LastSuccessAt.UnixNano())/1e9, host, name)
	}
	if active, ok := snap.Data.Bool("boostactive"); ok {
		ch <- prometheus.MustNewConstMetric(c.boostActive, prometheus.GaugeValue, boolValue(active), host, name)
	}

	set := d.Entities()
	for _, st := range set.SensorStates(snap) {
		v, ok := st.Value.(float64)
		if !st.Available || !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.sensor, prometheus.GaugeValue, v, host, name, st.ObjectID, st.Unit)
	}
	if ms := set.ModeState(snap); ms.Available {
		on, _ := ms.Value.(bool)
		ch <- prometheus.MustNewConstMetric(c.mode, prometheus.GaugeValue, boolValue(on), host, name)
	}
}

// NewRegistry returns a registry with the collector and the Go runtime and
// process collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
