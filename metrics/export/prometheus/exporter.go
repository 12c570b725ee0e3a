package prometheus

import (
	"net/http"
	"strconv"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
)

// Source is the read side of an authcore.Engine.
type Source interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	EventsDropped() uint64
}

type counterDesc struct {
	id   authcore.MetricID
	desc *prom.Desc
}

type histogramDesc struct {
	id   authcore.MetricID
	desc *prom.Desc
}

// Collector implements prom.Collector over a Source.
type Collector struct {
	source     Source
	counters   []counterDesc
	histograms []histogramDesc
	dropped    *prom.Desc
	bounds     []float64
}

// NewCollector returns a Collector reading engine. constLabels are attached
// to every series.
func NewCollector(engine *authcore.Engine, constLabels prom.Labels) *Collector {
	return NewCollectorFromSource(engine, constLabels)
}

// NewCollectorFromSource returns a Collector reading source.
func NewCollectorFromSource(source Source, constLabels prom.Labels) *Collector {
	c := &Collector{
		source:     source,
		counters:   make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms: make([]histogramDesc, 0, len(internaldefs.HistogramDefs)),
		bounds:     internaldefs.BoundSeconds(),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{
			id:   def.ID,
			desc: prom.NewDesc(def.Name, def.Help, nil, constLabels),
		})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{
			id:   def.ID,
			desc: prom.NewDesc(def.Name, def.Help, nil, constLabels),
		})
	}
	c.dropped = prom.NewDesc(internaldefs.EventsDroppedName,
		"Security events dropped under dispatcher backpressure.", nil, constLabels)
	return c
}

func (c *Collector) Describe(ch chan<- *prom.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, d := range c.histograms {
		ch <- d.desc
	}
	ch <- c.dropped
}

// Collect emits nothing while engine metrics are disabled.
func (c *Collector) Collect(ch chan<- prom.Metric) {
	if c == nil || c.source == nil {
		return
	}

	snapshot := c.source.MetricsSnapshot()
	dropped := c.source.EventsDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return
	}

	for _, d := range c.counters {
		ch <- prom.MustNewConstMetric(d.desc, prom.CounterValue, float64(snapshot.Counters[d.id]))
	}

	for _, d := range c.histograms {
		raw, ok := snapshot.Histograms[d.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(c.bounds))
		for i, le := range c.bounds {
			buckets[le] = cumulative[i]
		}
		sum := snapshot.LatencySums[d.id].Seconds()
		ch <- prom.MustNewConstHistogram(d.desc, cumulative[len(cumulative)-1], sum, buckets)
	}

	ch <- prom.MustNewConstMetric(c.dropped, prom.CounterValue, float64(dropped))
}

// Handler serves source through a private registry that also carries the
// Go runtime and process collectors.
func Handler(source Source, constLabels prom.Labels) (http.Handler, error) {
	reg := prom.NewRegistry()
	if err := reg.Register(NewCollectorFromSource(source, constLabels)); err != nil {
		return nil, err
	}
	if err := reg.Register(prom.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(prom.NewProcessCollector(prom.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

// NodeLabels returns the const labels identifying an audit node.
func NodeLabels(nodeID int64) prom.Labels {
	return prom.Labels{"node": strconv.FormatInt(nodeID, 10)}
}
