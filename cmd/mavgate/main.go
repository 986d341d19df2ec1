package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openmav/mavgate/internal/log"
	"github.com/openmav/mavgate/pkg/connector/mavlink"
	"github.com/openmav/mavgate/pkg/gateway"
	"github.com/openmav/mavgate/pkg/link"
)

const defaultPort = 8080

const nonLocalhostWarning = `
Do not listen on a network interface without adding client authentication. Set an auth secret
(-auth-secret or MAVGATE_AUTH_SECRET) before exposing the gateway beyond localhost; anyone who
can reach it can connect to and monitor the vehicle.`

var rootCmd = &cobra.Command{
	Use:   "mavgate",
	Short: "REST gateway for a single MAVLink vehicle link",
	RunE:  run,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("host", "localhost", "Gateway server hostname")
	flags.Int("port", defaultPort, "Port to listen on")
	flags.String("vehicle-address", gateway.DefaultVehicleAddress, "Default vehicle address used when a connect request omits one")
	flags.Duration("connect-timeout", link.DefaultConnectTimeout, "Default link negotiation timeout")
	flags.String("auth-secret", "", "Shared HS256 secret for bearer token authentication")
	flags.String("cert", "", "TLS certificate chain file; served plaintext HTTP when unset")
	flags.String("tls-key", "", "Server TLS private key file")
	flags.Bool("self-signed", false, "Serve TLS with a freshly generated self-signed localhost certificate")
	flags.String("log-file", "", "Append logs to this file instead of stderr")
	flags.Bool("verbose", false, "Enable verbose logging")
	flags.String("config", "", "YAML config file")

	viper.BindPFlags(flags)
	viper.SetEnvPrefix("MAVGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	if viper.GetBool("verbose") {
		log.SetLevel(log.LevelDebug)
	}
	if logFile := viper.GetString("log-file"); logFile != "" {
		log.SetOutputFile(logFile)
	}

	host := viper.GetString("host")
	if host != "localhost" && viper.GetString("auth-secret") == "" {
		fmt.Fprintln(os.Stderr, nonLocalhostWarning)
	}

	opts := []gateway.Option{
		gateway.WithDefaultAddress(viper.GetString("vehicle-address")),
		gateway.WithConnectTimeout(viper.GetDuration("connect-timeout")),
	}
	if secret := viper.GetString("auth-secret"); secret != "" {
		opts = append(opts, gateway.WithAuthSecret([]byte(secret)))
	}

	manager := link.NewManager(mavlink.New())
	defer manager.Disconnect()

	g := gateway.New(manager, opts...)
	addr := fmt.Sprintf("%s:%d", host, viper.GetInt("port"))
	log.Info("Listening on %s", addr)

	certFile := viper.GetString("cert")
	keyFile := viper.GetString("tls-key")
	switch {
	case viper.GetBool("self-signed"):
		server, certPEM := NewServer(addr, g)
		log.Debug("Serving with self-signed certificate:\n%s", certPEM)
		return server.ListenAndServeTLS("", "")
	case certFile != "":
		return http.ListenAndServeTLS(addr, certFile, keyFile, g)
	default:
		server := &http.Server{Addr: addr, Handler: g, ReadHeaderTimeout: 5 * time.Second}
		return server.ListenAndServe()
	}
}
