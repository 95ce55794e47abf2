package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meshdof/go-meshdof/pkg/types"
)

// 指标命名空间
const (
	metricsNamespace = "meshdof"
	metricsSubsystem = "exchange"
)

// Collector 把 Counters 暴露为 prometheus.Collector
//
// 常量指标模式：采集时读取原子计数器快照，自身不持有状态，
// 可安全注册到任意 Registry。
type Collector struct {
	counters *Counters

	bytesDesc     *prometheus.Desc
	msgsDesc      *prometheus.Desc
	categoryDesc  *prometheus.Desc
	peerDesc      *prometheus.Desc
	exchangesDesc *prometheus.Desc
	stallsDesc    *prometheus.Desc
}

// NewCollector 创建包装 Counters 的采集器
func NewCollector(c *Counters) *Collector {
	return &Collector{
		counters: c,
		bytesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, metricsSubsystem, "bytes_total"),
			"Total exchanged payload bytes.",
			[]string{"direction"}, nil,
		),
		msgsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, metricsSubsystem, "messages_total"),
			"Total exchanged messages.",
			[]string{"direction"}, nil,
		),
		categoryDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, metricsSubsystem, "category_bytes_total"),
			"Exchanged payload bytes per message category.",
			[]string{"category", "direction"}, nil,
		),
		peerDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, metricsSubsystem, "peer_bytes_total"),
			"Exchanged payload bytes per peer rank.",
			[]string{"rank", "direction"}, nil,
		),
		exchangesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, metricsSubsystem, "rounds_total"),
			"Completed exchange rounds.",
			nil, nil,
		),
		stallsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, metricsSubsystem, "stall_warnings_total"),
			"Stall watchdog warnings.",
			nil, nil,
		),
	}
}

var _ prometheus.Collector = (*Collector)(nil)

// Describe 实现 prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.bytesDesc
	ch <- c.msgsDesc
	ch <- c.categoryDesc
	ch <- c.peerDesc
	ch <- c.exchangesDesc
	ch <- c.stallsDesc
}

// Collect 实现 prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.counters.GetStats()

	ch <- prometheus.MustNewConstMetric(c.bytesDesc,
		prometheus.CounterValue, float64(stats.BytesIn), "in")
	ch <- prometheus.MustNewConstMetric(c.bytesDesc,
		prometheus.CounterValue, float64(stats.BytesOut), "out")
	ch <- prometheus.MustNewConstMetric(c.msgsDesc,
		prometheus.CounterValue, float64(stats.MsgsIn), "in")
	ch <- prometheus.MustNewConstMetric(c.msgsDesc,
		prometheus.CounterValue, float64(stats.MsgsOut), "out")
	ch <- prometheus.MustNewConstMetric(c.exchangesDesc,
		prometheus.CounterValue, float64(stats.Exchanges))
	ch <- prometheus.MustNewConstMetric(c.stallsDesc,
		prometheus.CounterValue, float64(stats.Stalls))

	for _, cat := range []types.Category{types.CategoryQuery, types.CategoryReply, types.CategoryCollective} {
		in, out := c.counters.GetStatsForCategory(cat)
		ch <- prometheus.MustNewConstMetric(c.categoryDesc,
			prometheus.CounterValue, float64(in), cat.String(), "in")
		ch <- prometheus.MustNewConstMetric(c.categoryDesc,
			prometheus.CounterValue, float64(out), cat.String(), "out")
	}

	for _, rank := range c.counters.Peers() {
		in, out := c.counters.GetStatsForPeer(rank)
		ch <- prometheus.MustNewConstMetric(c.peerDesc,
			prometheus.CounterValue, float64(in), rank.String(), "in")
		ch <- prometheus.MustNewConstMetric(c.peerDesc,
			prometheus.CounterValue, float64(out), rank.String(), "out")
	}
}
