// Package flags defines tracerpcd's command-line and TOML config surface,
// following cmd/geth's own urfave/cli + naoina/toml convention (see
// cmd/geth's gethConfig/loadConfig pair).
package flags

import (
	"bufio"
	"errors"
	"os"
	"reflect"

	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"
)

var (
	ConfigFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	ListenAddrFlag = &cli.StringFlag{
		Name:  "http.addr",
		Usage: "JSON-RPC listen address",
		Value: "127.0.0.1:8545",
	}
	KVTargetFlag = &cli.StringFlag{
		Name:  "kv.target",
		Usage: "Remote KV server address (host:port)",
		Value: "127.0.0.1:9090",
	}
	WorkersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "Number of worker-pool goroutines replaying EVM execution",
		Value: 8,
	}
	QueueFlag = &cli.IntFlag{
		Name:  "workers.queue",
		Usage: "Worker pool task queue depth",
		Value: 64,
	}
	CodeCacheFlag = &cli.IntFlag{
		Name:  "cache.code",
		Usage: "Process-wide bytecode cache size in bytes",
		Value: 64 << 20,
	}
	JWTSecretFlag = &cli.StringFlag{
		Name:  "auth.jwtsecret",
		Usage: "Path to a hex-encoded 32-byte JWT secret for authenticated RPC",
	}
	VerbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent 1=error 2=warn 3=info 4=debug 5=trace",
		Value: 3,
	}
	MetricsAddrFlag = &cli.StringFlag{
		Name:  "metrics.addr",
		Usage: "Metrics HTTP listen address; empty disables the endpoint",
	}
)

// Flags is the full flag set registered on the root command.
var Flags = []cli.Flag{
	ConfigFileFlag,
	ListenAddrFlag,
	KVTargetFlag,
	WorkersFlag,
	QueueFlag,
	CodeCacheFlag,
	JWTSecretFlag,
	VerbosityFlag,
	MetricsAddrFlag,
}

// Config is tracerpcd's resolved configuration, populated from defaults,
// then a TOML file if -config is given, then CLI flags (highest
// precedence), mirroring cmd/geth's gethConfig layering.
type Config struct {
	HTTPAddr    string
	KVTarget    string
	Workers     int
	WorkerQueue int
	CodeCacheMB int
	JWTSecret   string
	Verbosity   int
	MetricsAddr string
}

// tomlSettings matches cmd/geth's own naoina/toml.Config: field names
// taken as-is, unrecognized fields rejected outright rather than silently
// ignored.
var tomlSettings = toml.Config{
	NormFieldName: func(_ reflect.Type, field string) string { return field },
	FieldToKey:    func(_ reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		return errors.New("field '" + field + "' is not defined in " + rt.String())
	},
}

// loadConfigFile reads a TOML file into cfg, the same shape as cmd/geth's
// loadConfig helper.
func loadConfigFile(file string, cfg *Config) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// FromContext builds a Config from CLI flags, applying a -config file's
// values first when present so flags can override it.
func FromContext(c *cli.Context) (Config, error) {
	cfg := Config{
		HTTPAddr:    ListenAddrFlag.Value,
		KVTarget:    KVTargetFlag.Value,
		Workers:     WorkersFlag.Value,
		WorkerQueue: QueueFlag.Value,
		CodeCacheMB: CodeCacheFlag.Value >> 20,
		Verbosity:   VerbosityFlag.Value,
	}
	if path := c.String(ConfigFileFlag.Name); path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if c.IsSet(ListenAddrFlag.Name) {
		cfg.HTTPAddr = c.String(ListenAddrFlag.Name)
	}
	if c.IsSet(KVTargetFlag.Name) {
		cfg.KVTarget = c.String(KVTargetFlag.Name)
	}
	if c.IsSet(WorkersFlag.Name) {
		cfg.Workers = c.Int(WorkersFlag.Name)
	}
	if c.IsSet(QueueFlag.Name) {
		cfg.WorkerQueue = c.Int(QueueFlag.Name)
	}
	if c.IsSet(CodeCacheFlag.Name) {
		cfg.CodeCacheMB = c.Int(CodeCacheFlag.Name) >> 20
	}
	if c.IsSet(JWTSecretFlag.Name) {
		cfg.JWTSecret = c.String(JWTSecretFlag.Name)
	}
	if c.IsSet(VerbosityFlag.Name) {
		cfg.Verbosity = c.Int(VerbosityFlag.Name)
	}
	if c.IsSet(MetricsAddrFlag.Name) {
		cfg.MetricsAddr = c.String(MetricsAddrFlag.Name)
	}
	return cfg, nil
}
