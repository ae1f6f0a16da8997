package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/99designs/gqlgen/graphql/playground"

	"github.com/hanpama/graphgate/internal/compose"
	"github.com/hanpama/graphgate/internal/config"
	"github.com/hanpama/graphgate/internal/eventbus"
	"github.com/hanpama/graphgate/internal/executor"
	"github.com/hanpama/graphgate/internal/fedrt"
	"github.com/hanpama/graphgate/internal/gqltp"
	"github.com/hanpama/graphgate/internal/introspection"
	"github.com/hanpama/graphgate/internal/logging"
	"github.com/hanpama/graphgate/internal/metric"
	"github.com/hanpama/graphgate/internal/otel"
	"github.com/hanpama/graphgate/internal/schema"
	"github.com/hanpama/graphgate/internal/server"
)

const rootUsage = `graphgate: GraphQL federation gateway

USAGE:
  graphgate <command> [flags]

COMMANDS:
  serve            Run the HTTP gateway over the configured backends
  print-schema     Introspect the backends, compose, and render the SDL
  check            Introspect and compose; exit non-zero on any error
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -config <file>              YAML configuration file
  -backend <name=url>         Add a backend GraphQL endpoint. Repeatable;
                              overrides a same-named backend from the file
  -server.addr <addr>         HTTP listen address (default: :8080)
  -server.pretty              Pretty-print JSON responses
  -server.timeout <duration>  Per-request timeout, e.g. 10s (default: 10s)
  -playground <bool>          Serve the in-browser IDE at / (default: true)
  -introspection <bool>       Answer introspection on the composite (default: true)
  -metrics <bool>             Serve Prometheus metrics at /metrics
  -otel.endpoint <addr>       OTLP collector endpoint
  -otel.service <name>        OpenTelemetry service name (default: graphgate)
`

const printSchemaUsage = `print-schema FLAGS:
  -config <file>       YAML configuration file
  -backend <name=url>  Add a backend GraphQL endpoint. Repeatable
  -out <file>          Write the rendered SDL to file (default: stdout)
`

const checkUsage = `check FLAGS:
  -config <file>       YAML configuration file
  -backend <name=url>  Add a backend GraphQL endpoint. Repeatable
  (Introspects every backend and composes; exits non-zero on errors)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("graphgate", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "print-schema":
		return cmdPrintSchema(cmdArgs)
	case "check":
		return cmdCheck(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "print-schema":
		fmt.Print(printSchemaUsage)
	case "check":
		fmt.Print(checkUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

// backendFlag collects repeatable -backend name=url mappings, keeping the
// order they were given in: composition order decides who keeps a colliding
// name under the rename policy.
type backendFlag struct {
	names []string
	urls  map[string]string
}

func (b *backendFlag) String() string { return "" }

func (b *backendFlag) Set(v string) error {
	name, url, ok := strings.Cut(v, "=")
	name = strings.TrimSpace(name)
	url = strings.TrimSpace(url)
	if !ok || name == "" || url == "" {
		return fmt.Errorf("invalid backend %q", v)
	}
	if b.urls == nil {
		b.urls = map[string]string{}
	}
	if _, seen := b.urls[name]; !seen {
		b.names = append(b.names, name)
	}
	b.urls[name] = url
	return nil
}

// loadConfig merges the optional config file with the -backend flags. Flags
// override the URL of a same-named file entry and append new backends.
func loadConfig(path string, bf *backendFlag) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	for _, name := range bf.names {
		url := bf.urls[name]
		replaced := false
		for i := range cfg.Backends {
			if cfg.Backends[i].Name == name {
				cfg.Backends[i].URL = url
				replaced = true
				break
			}
		}
		if !replaced {
			cfg.Backends = append(cfg.Backends, config.Backend{Name: name, URL: url})
		}
	}
	if len(cfg.Backends) == 0 {
		return nil, fmt.Errorf("no backends configured; use -config or -backend")
	}
	return cfg, nil
}

// composeGateway introspects every configured backend and merges the results
// into the composite. With on_introspection_error: exclude an unreachable
// backend is dropped instead of failing startup.
func composeGateway(ctx context.Context, cfg *config.Config, client *gqltp.Client) (*compose.Composite, error) {
	intro := introspection.NewClient(client)
	subschemas := make([]compose.Subschema, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		sch, err := intro.Fetch(ctx, b.Name, b.URL, b.Headers)
		if err != nil {
			if cfg.Composition.OnIntrospectionError == config.OnIntrospectionErrorExclude {
				log.Printf("excluding backend %s: %v", b.Name, err)
				continue
			}
			return nil, err
		}
		subschemas = append(subschemas, compose.Subschema{
			Backend: b.Name,
			URL:     b.URL,
			Schema:  sch,
			Headers: b.Headers,
			Timeout: b.BackendTimeout(),
		})
	}
	if len(subschemas) == 0 {
		return nil, fmt.Errorf("no backends left to compose")
	}
	extras, err := cfg.Extras()
	if err != nil {
		return nil, err
	}
	return compose.Compose(subschemas, extras, &compose.Options{
		Policy: cfg.CollisionPolicy(),
		Client: client,
	})
}

// newGatewayMux builds the composite and mounts every endpoint. The composite
// exists before the caller starts listening, so /readyz is the readiness gate
// made observable rather than a live probe.
func newGatewayMux(ctx context.Context, cfg *config.Config, metrics *metric.Metrics) (*http.ServeMux, error) {
	client := gqltp.New()
	composite, err := composeGateway(ctx, cfg, client)
	if err != nil {
		return nil, err
	}

	var runtime executor.Runtime = fedrt.NewRuntime(composite)
	sch := composite.Schema
	if cfg.Server.Introspection {
		wrapper := introspection.Wrap(runtime, sch)
		runtime = wrapper.Runtime
		sch = wrapper.Schema
	}

	var sopts []server.Option
	if cfg.Server.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if d := cfg.ServerTimeout(); d > 0 {
		sopts = append(sopts, server.WithTimeout(d))
	}
	if cfg.Server.MaxBodyBytes > 0 {
		sopts = append(sopts, server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes))
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(cfg.Server.CORSOrigins...))
	}
	h, err := server.New(runtime, sch, sopts...)
	if err != nil {
		return nil, fmt.Errorf("server init: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", h)
	if cfg.Server.Playground {
		mux.Handle("/", playground.Handler("graphgate", "/graphql"))
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux, nil
}

func cmdServe(args []string) error {
	configPath := ""
	addr := ""
	pretty := false
	timeout := ""
	playgroundOn := true
	introspectionOn := true
	metricsOn := false
	otelEndpoint := ""
	otelService := ""
	var bf backendFlag

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&configPath, "config", configPath, "YAML configuration file")
	fs.Var(&bf, "backend", "Add a backend GraphQL endpoint (name=url)")
	fs.StringVar(&addr, "server.addr", addr, "HTTP listen address")
	fs.BoolVar(&pretty, "server.pretty", pretty, "Pretty-print JSON responses")
	fs.StringVar(&timeout, "server.timeout", timeout, "Per-request timeout")
	fs.BoolVar(&playgroundOn, "playground", playgroundOn, "Serve the in-browser IDE")
	fs.BoolVar(&introspectionOn, "introspection", introspectionOn, "Answer introspection on the composite")
	fs.BoolVar(&metricsOn, "metrics", metricsOn, "Serve Prometheus metrics")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}

	cfg, err := loadConfig(configPath, &bf)
	if err != nil {
		return err
	}
	// Only flags the user actually set override the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server.addr":
			cfg.Server.Addr = addr
		case "server.pretty":
			cfg.Server.Pretty = pretty
		case "server.timeout":
			cfg.Server.Timeout = timeout
		case "playground":
			cfg.Server.Playground = playgroundOn
		case "introspection":
			cfg.Server.Introspection = introspectionOn
		case "metrics":
			cfg.Telemetry.Metrics = metricsOn
		case "otel.endpoint":
			cfg.Telemetry.OTelEndpoint = otelEndpoint
		case "otel.service":
			cfg.Telemetry.OTelService = otelService
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	eventbus.Use(eventbus.New())
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer logging.RegisterSubscribers(logger)()

	var metrics *metric.Metrics
	if cfg.Telemetry.Metrics {
		metrics = metric.New()
		defer metrics.RegisterSubscribers()()
	}
	shutdown, err := otel.Setup(cfg.Telemetry.OTelEndpoint, cfg.Telemetry.OTelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	mux, err := newGatewayMux(context.Background(), cfg, metrics)
	if err != nil {
		return err
	}

	log.Printf("graphgate listening on %s", cfg.Server.Addr)
	return http.ListenAndServe(cfg.Server.Addr, mux)
}

func cmdPrintSchema(args []string) error {
	configPath := ""
	outFile := ""
	var bf backendFlag

	fs := flag.NewFlagSet("print-schema", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&configPath, "config", configPath, "YAML configuration file")
	fs.Var(&bf, "backend", "Add a backend GraphQL endpoint (name=url)")
	fs.StringVar(&outFile, "out", outFile, "Write the rendered SDL to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, printSchemaUsage)
		return err
	}

	cfg, err := loadConfig(configPath, &bf)
	if err != nil {
		return err
	}

	eventbus.Use(eventbus.New())
	composite, err := composeGateway(context.Background(), cfg, gqltp.New())
	if err != nil {
		return err
	}
	sdl := schema.Render(composite.Schema)
	if outFile == "" {
		fmt.Print(sdl)
		return nil
	}
	return os.WriteFile(outFile, []byte(sdl), 0644)
}

func cmdCheck(args []string) error {
	configPath := ""
	var bf backendFlag

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&configPath, "config", configPath, "YAML configuration file")
	fs.Var(&bf, "backend", "Add a backend GraphQL endpoint (name=url)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, checkUsage)
		return err
	}

	cfg, err := loadConfig(configPath, &bf)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	eventbus.Use(eventbus.New())
	composite, err := composeGateway(context.Background(), cfg, gqltp.New())
	if err != nil {
		return err
	}
	fmt.Printf("ok: %d backends, %d types, %d stitched fields\n",
		len(composite.Targets), len(composite.Schema.Types), len(composite.Batches)+len(composite.Singles))
	return nil
}
