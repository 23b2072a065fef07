// Package metrics backs the admin listener: runtime collectors plus
// the deployment-static identity of this enrichment instance (build
// labels, configured layers, cache mode). Request-path series live on
// the default registry in internal/core/observability.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "enrichment"

type BuildInfo struct {
	Version   string
	Revision  string
	Branch    string
	BuildDate string
}

type Config struct {
	Addr         string
	Path         string
	Build        BuildInfo
	LayerCount   int
	CacheEnabled bool
}

type Provider struct {
	reg *prometheus.Registry
}

func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build identity of this binary (value is always 1).",
		},
		[]string{"version", "revision", "branch", "build_date"},
	)
	reg.MustRegister(build)
	v := cfg.Build
	if v.Version == "" {
		v.Version = "dev"
	}
	build.WithLabelValues(v.Version, v.Revision, v.Branch, v.BuildDate).Set(1)

	layersConfigured := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "layers_configured",
		Help:      "Number of layers loaded from the registry file.",
	})
	reg.MustRegister(layersConfigured)
	layersConfigured.Set(float64(cfg.LayerCount))

	cacheEnabled := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_enabled",
		Help:      "1 when the result cache is active, 0 when degraded to live queries.",
	})
	reg.MustRegister(cacheEnabled)
	if cfg.CacheEnabled {
		cacheEnabled.Set(1)
	}

	return &Provider{reg: reg}
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }
