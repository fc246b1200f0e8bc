package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/psantana5/renderhook/pkg/bridge"
	"github.com/psantana5/renderhook/pkg/host"
	"github.com/psantana5/renderhook/pkg/jobargs"
	"github.com/psantana5/renderhook/pkg/logging"
	"github.com/psantana5/renderhook/pkg/models"
	"github.com/psantana5/renderhook/pkg/prerender"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	outputFormat string
	logLevel     string
	logFormat    string
	logFile      string
	snapshotPath string
	hostURL      string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "renderhook",
	Short: "Pre-render configuration resolver for farm render jobs",
	Long: `renderhook decides, once per render job, which compute devices the host
activates, where compositor file outputs write, and whether persistent data
is kept between frames.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.renderhook/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("engines.gpu", []string{prerender.DefaultEngine})
	viper.SetDefault("engines.persistent_data", []string{prerender.DefaultEngine})
	viper.SetDefault("compositor.node_kind", models.NodeKindFileOutput)
	viper.SetDefault("marker_flag", jobargs.DefaultMarker)
	viper.SetDefault("bridge.url", "")
	viper.SetDefault("bridge.api_key", "")
	viper.SetDefault("bridge.addr", ":8765")
	viper.SetDefault("bridge.rate_limit", 50.0)
	viper.SetDefault("bridge.tls.ca", "")
	viper.SetDefault("metrics.textfile", "")
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4318")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".renderhook"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("RENDERHOOK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", cfgFile, err)
			os.Exit(1)
		}
	}
}

// newLogger builds the logger from the log.* settings
func newLogger() (*logging.Logger, error) {
	level := logging.ParseLevel(viper.GetString("log.level"))
	json := strings.EqualFold(viper.GetString("log.format"), "json")

	if path := viper.GetString("log.file"); path != "" {
		return logging.NewFileLogger(path, level, json)
	}
	return logging.NewLogger(level, json), nil
}

// passConfig decodes the pass settings
func passConfig() prerender.Config {
	return prerender.Config{
		GPUEngines:            viper.GetStringSlice("engines.gpu"),
		PersistentDataEngines: viper.GetStringSlice("engines.persistent_data"),
		NodeKind:              viper.GetString("compositor.node_kind"),
		Marker:                viper.GetString("marker_flag"),
	}
}

// addHostFlags registers the flags that choose where host state comes from
func addHostFlags(c *cobra.Command) {
	c.Flags().StringVarP(&snapshotPath, "snapshot", "s", "", "scene snapshot file (yaml or json)")
	c.Flags().StringVar(&hostURL, "host-url", "", "bridge URL to use instead of a snapshot file")
}

// openHost returns the host selected by --snapshot or --host-url. The
// returned function reports the host state after any changes.
func openHost(c *cobra.Command) (host.Host, func() (*models.Snapshot, error), error) {
	url := hostURL
	if url == "" && snapshotPath == "" {
		url = viper.GetString("bridge.url")
	}

	switch {
	case snapshotPath != "" && hostURL != "":
		return nil, nil, fmt.Errorf("--snapshot and --host-url are mutually exclusive")
	case snapshotPath != "":
		snap, err := host.LoadSnapshot(snapshotPath)
		if err != nil {
			return nil, nil, err
		}
		h := host.NewMemoryHost(snap)
		return h, func() (*models.Snapshot, error) { return h.Snapshot(), nil }, nil
	case url != "":
		client := host.NewClient(strings.TrimRight(url, "/"))
		client.SetAPIKey(viper.GetString("bridge.api_key"))
		if ca, cert := viper.GetString("bridge.tls.ca"), viper.GetString("bridge.tls.client_cert"); ca != "" || cert != "" {
			tlsConfig, err := bridge.LoadClientTLS(ca, cert, viper.GetString("bridge.tls.client_key"))
			if err != nil {
				return nil, nil, err
			}
			client.SetHTTPClient(&http.Client{
				Timeout:   30 * time.Second,
				Transport: &http.Transport{TLSClientConfig: tlsConfig},
			})
		}
		client = client.WithContext(c.Context())
		return client, client.Snapshot, nil
	default:
		return nil, nil, fmt.Errorf("either --snapshot or --host-url is required")
	}
}
