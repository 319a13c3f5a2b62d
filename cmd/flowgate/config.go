package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/basinrelay/flowgate/internal/sinks/blackhole"
	"github.com/basinrelay/flowgate/internal/sinks/console"
	"github.com/basinrelay/flowgate/internal/sinks/httpsink"
	"github.com/basinrelay/flowgate/internal/sources/generator"
	"github.com/basinrelay/flowgate/internal/sources/stdin"
	"github.com/basinrelay/flowgate/internal/router"
	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/pipeline"
	"github.com/basinrelay/flowgate/pkg/pipeline/compress"
	"github.com/basinrelay/flowgate/pkg/topology"
)

// fileConfig is the on-disk YAML shape for `flowgate run -f`. It is a
// flattened description of a topology.Graph: every node names its
// type, carries only the settings that type's package needs, and
// edges wire nodes together exactly as pkg/topology expects.
type fileConfig struct {
	DataDir  string `yaml:"dataDir"`
	Timezone string `yaml:"timezone"`
	SchemaID uint32 `yaml:"schemaID"`

	Nodes []nodeConfig `yaml:"nodes"`
	Edges []edgeConfig `yaml:"edges"`
}

type nodeConfig struct {
	ID             string `yaml:"id"`
	Type           string `yaml:"type"`
	RequireHealthy bool   `yaml:"requireHealthy"`

	Generator  *generatorConfig  `yaml:"generator,omitempty"`
	Stdin      *stdinConfig      `yaml:"stdin,omitempty"`
	Console    *consoleConfig    `yaml:"console,omitempty"`
	HTTPSink   *httpSinkConfig   `yaml:"httpSink,omitempty"`
	RouterSrc  *routerSrcConfig  `yaml:"routerSource,omitempty"`
	RouterSink *routerSinkConfig `yaml:"routerSink,omitempty"`
}

type generatorConfig struct {
	Shape string  `yaml:"shape"`
	Rate  float64 `yaml:"rate"`
	Count uint64  `yaml:"count"`
}

type stdinConfig struct{}

type consoleConfig struct {
	TagMode string `yaml:"tagMode"`
}

type httpSinkConfig struct {
	URL                 string            `yaml:"url"`
	HealthURL           string            `yaml:"healthURL"`
	Headers             map[string]string `yaml:"headers"`
	PartitionTmpl       string            `yaml:"partitionTemplate"`
	Compression         string            `yaml:"compression"`
	MaxEvents           int               `yaml:"maxEvents"`
	MaxBytes            int               `yaml:"maxBytes"`
	BatchTimeout        time.Duration     `yaml:"batchTimeout"`
	MaxRequestSize      int               `yaml:"maxRequestSize"`
	MaxConcurrency      int               `yaml:"maxConcurrency"`
	AdaptiveConcurrency bool              `yaml:"adaptiveConcurrency"`
	MaxRetries          int               `yaml:"maxRetries"`
	RequestTimeout      time.Duration     `yaml:"requestTimeout"`
}

type routerSrcConfig struct {
	Addr              string `yaml:"addr"`
	CertDir           string `yaml:"certDir"`
	RequireClientCert bool   `yaml:"requireClientCert"`
}

type routerSinkConfig struct {
	Addr           string        `yaml:"addr"`
	CertDir        string        `yaml:"certDir"`
	MaxEvents      int           `yaml:"maxEvents"`
	MaxBytes       int           `yaml:"maxBytes"`
	BatchTimeout   time.Duration `yaml:"batchTimeout"`
	Compression    string        `yaml:"compression"`
	MaxRequestSize int           `yaml:"maxRequestSize"`
	MaxConcurrency int           `yaml:"maxConcurrency"`
	MaxRetries     int           `yaml:"maxRetries"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

type edgeConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`

	Backend           string `yaml:"backend"`
	Policy            string `yaml:"policy"`
	Capacity          int    `yaml:"capacity"`
	DiskDir           string `yaml:"diskDir"`
	DiskMaxBufferSize int64  `yaml:"diskMaxBufferSize"`

	Overflow *edgeConfig `yaml:"overflow,omitempty"`
}

// anyTypes is what every sink and transform in this reference build
// declares as its Inputs: flowgate's sinks don't discriminate by event
// type, so the only type-checking Validate does at graph-build time is
// between sources and the sinks/routers downstream of them.
var anyTypes = []event.Type{event.TypeLog, event.TypeMetric, event.TypeTrace}

func loadGraph(path string) (*topology.Graph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	g := topology.NewGraph(topology.GlobalOptions{
		DataDir:  fc.DataDir,
		Timezone: fc.Timezone,
		SchemaID: fc.SchemaID,
	})

	for _, nc := range fc.Nodes {
		node, err := buildNode(nc)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nc.ID, err)
		}
		if err := g.AddNode(node); err != nil {
			return nil, err
		}
	}

	for _, ec := range fc.Edges {
		spec, err := buildEdgeSpec(ec)
		if err != nil {
			return nil, fmt.Errorf("edge %s->%s: %w", ec.From, ec.To, err)
		}
		g.Connect(ec.From, ec.To, spec)
	}

	return g, nil
}

func buildNode(nc nodeConfig) (topology.Node, error) {
	switch nc.Type {
	case "generator":
		cfg := generatorConfig{}
		if nc.Generator != nil {
			cfg = *nc.Generator
		}
		shape := generator.ShapeLog
		outputs := []event.Type{event.TypeLog}
		if cfg.Shape == "metric" {
			shape = generator.ShapeMetric
			outputs = []event.Type{event.TypeMetric}
		}
		return topology.Node{
			ID: nc.ID, Kind: topology.Source, Outputs: outputs,
			Build: generator.Build(nc.ID, generator.Config{Shape: shape, Rate: cfg.Rate, Count: cfg.Count}),
		}, nil

	case "stdin":
		return topology.Node{
			ID: nc.ID, Kind: topology.Source, Outputs: []event.Type{event.TypeLog},
			Build: stdin.Build(nc.ID, stdin.Config{}),
		}, nil

	case "console":
		cfg := consoleConfig{}
		if nc.Console != nil {
			cfg = *nc.Console
		}
		tagMode := event.TagSingle
		return topology.Node{
			ID: nc.ID, Kind: topology.Sink, Inputs: anyTypes, RequireHealthy: nc.RequireHealthy,
			Build: console.Build(nc.ID, console.Config{Writer: os.Stdout, TagMode: tagMode}),
		}, nil

	case "blackhole":
		return topology.Node{
			ID: nc.ID, Kind: topology.Sink, Inputs: anyTypes, RequireHealthy: nc.RequireHealthy,
			Build: blackhole.Build(nc.ID),
		}, nil

	case "httpSink":
		if nc.HTTPSink == nil {
			return topology.Node{}, fmt.Errorf("httpSink node requires an httpSink block")
		}
		hc := *nc.HTTPSink
		enc, err := compressEncoding(hc.Compression)
		if err != nil {
			return topology.Node{}, err
		}
		return topology.Node{
			ID: nc.ID, Kind: topology.Sink, Inputs: anyTypes, RequireHealthy: nc.RequireHealthy,
			Build: httpsink.Build(nc.ID, httpsink.Config{
				URL: hc.URL, HealthURL: hc.HealthURL, Headers: hc.Headers,
				BatchLimits:         pipeline.BatchLimits{MaxEvents: hc.MaxEvents, MaxBytes: hc.MaxBytes, Timeout: hc.BatchTimeout},
				PartitionTmpl:       hc.PartitionTmpl,
				Compression:         enc,
				MaxRequestSize:      hc.MaxRequestSize,
				MaxConcurrency:      hc.MaxConcurrency,
				AdaptiveConcurrency: hc.AdaptiveConcurrency,
				MaxRetries:          hc.MaxRetries,
				RequestTimeout:      hc.RequestTimeout,
			}),
		}, nil

	case "routerSource":
		if nc.RouterSrc == nil {
			return topology.Node{}, fmt.Errorf("routerSource node requires a routerSource block")
		}
		rc := *nc.RouterSrc
		return topology.Node{
			ID: nc.ID, Kind: topology.Source, Outputs: anyTypes,
			Build: router.Build(nc.ID, router.SourceConfig{
				Addr: rc.Addr, CertDir: rc.CertDir, RequireClientCert: rc.RequireClientCert,
			}),
		}, nil

	case "routerSink":
		if nc.RouterSink == nil {
			return topology.Node{}, fmt.Errorf("routerSink node requires a routerSink block")
		}
		rc := *nc.RouterSink
		enc, err := compressEncoding(rc.Compression)
		if err != nil {
			return topology.Node{}, err
		}
		return topology.Node{
			ID: nc.ID, Kind: topology.Sink, Inputs: anyTypes, RequireHealthy: nc.RequireHealthy,
			Build: router.BuildSink(nc.ID, router.SinkConfig{
				Addr: rc.Addr, CertDir: rc.CertDir,
				BatchLimits:    pipeline.BatchLimits{MaxEvents: rc.MaxEvents, MaxBytes: rc.MaxBytes, Timeout: rc.BatchTimeout},
				Compression:    enc,
				MaxRequestSize: rc.MaxRequestSize,
				MaxConcurrency: rc.MaxConcurrency,
				MaxRetries:     rc.MaxRetries,
				RequestTimeout: rc.RequestTimeout,
			}),
		}, nil

	default:
		return topology.Node{}, fmt.Errorf("unknown node type %q", nc.Type)
	}
}

func compressEncoding(s string) (compress.Encoding, error) {
	switch s {
	case "", "identity":
		return compress.None, nil
	case "gzip":
		return compress.Gzip, nil
	case "zstd":
		return compress.Zstd, nil
	case "snappy":
		return compress.Snappy, nil
	default:
		return "", fmt.Errorf("unknown compression %q", s)
	}
}

func buildEdgeSpec(ec edgeConfig) (topology.EdgeSpec, error) {
	spec := topology.EdgeSpec{
		Capacity:          ec.Capacity,
		DiskDir:           ec.DiskDir,
		DiskMaxBufferSize: ec.DiskMaxBufferSize,
	}

	switch ec.Backend {
	case "", "memory":
		spec.Backend = topology.Memory
	case "disk":
		spec.Backend = topology.Disk
	default:
		return spec, fmt.Errorf("unknown backend %q", ec.Backend)
	}

	switch ec.Policy {
	case "", "block":
		spec.Policy = buffer.Block
	case "dropNewest":
		spec.Policy = buffer.DropNewest
	case "overflow":
		spec.Policy = buffer.Overflow
	default:
		return spec, fmt.Errorf("unknown policy %q", ec.Policy)
	}

	if ec.Overflow != nil {
		sub, err := buildEdgeSpec(*ec.Overflow)
		if err != nil {
			return spec, err
		}
		spec.Overflow = &sub
	}

	return spec, nil
}
