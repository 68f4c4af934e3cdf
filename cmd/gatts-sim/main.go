// Command gatts-sim runs a GATT server over the in-memory host stack
// and scripts a short central session against it: connect, subscribe to
// every subscribable characteristic, a few value pushes, disconnect.
// It exists to exercise the server end to end without a radio.
package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nimgatt/gatts"
	"github.com/nimgatt/gatts/simstack"
)

const simConnHandle = 1

var (
	configPath string
	logLevel   string
	pushes     int
	interval   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "gatts-sim",
	Short: "Run a simulated BLE GATT peripheral",
	Long: `Runs a GATT server over an in-memory host stack and plays a scripted
central session against it. Without --config it serves a heart rate
service with a notifiable measurement characteristic.`,
	Args: cobra.NoArgs,
	RunE: runSim,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "YAML service definition file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, or error")
	rootCmd.Flags().IntVar(&pushes, "pushes", 3, "Number of value pushes to send while subscribed")
	rootCmd.Flags().DurationVar(&interval, "interval", 200*time.Millisecond, "Delay between value pushes")
}

func configureLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}

func runSim(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	logger, err := configureLogger()
	if err != nil {
		return err
	}

	cfg := defaultConfig()
	if configPath != "" {
		if cfg, err = loadConfig(configPath); err != nil {
			return err
		}
	}

	stack := simstack.New()
	dev := gatts.InitDevice(stack,
		gatts.Logger(logger),
		gatts.Connect(func(c *gatts.ConnDesc) {
			logger.WithFields(logrus.Fields{
				"conn": c.ConnHandle,
				"peer": c.PeerAddr.String(),
			}).Info("central connected")
		}),
		gatts.Disconnect(func(c *gatts.ConnDesc) {
			logger.WithField("conn", c.ConnHandle).Info("central disconnected")
		}),
	)
	srv := dev.Server()

	chars, err := buildServices(srv, cfg)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := dev.StartAdvertising(); err != nil {
		return fmt.Errorf("start advertising: %w", err)
	}
	logger.WithField("name", cfg.Name).Info("serving")

	// Scripted central session.
	stack.Connect(simConnHandle, "aa:bb:cc:dd:ee:01")
	for _, char := range chars {
		props := char.Properties()
		if props&(gatts.CharNotify|gatts.CharIndicate) == 0 {
			continue
		}
		stack.Subscribe(simConnHandle, char.Handle(),
			props&gatts.CharNotify != 0, props&gatts.CharIndicate != 0)
		logger.WithFields(logrus.Fields{
			"char": char.UUID().String(),
			"attr": fmt.Sprintf("0x%04x", char.Handle()),
		}).Info("central subscribed")
	}

	for i := 0; i < pushes; i++ {
		for _, char := range chars {
			props := char.Properties()
			if props&(gatts.CharNotify|gatts.CharIndicate) == 0 {
				continue
			}
			v := make([]byte, 2)
			binary.BigEndian.PutUint16(v, uint16(60+i))
			char.SetValue(v)
			if err := char.Notify(); err != nil {
				logger.WithError(err).Warn("push failed")
			}
			if props&gatts.CharIndicate != 0 {
				// The simulated peer acknowledges immediately.
				stack.ConfirmIndication(simConnHandle, char.Handle(), 0)
			}
		}
		time.Sleep(interval)
	}

	for _, pdu := range stack.Sent() {
		kind := "notify"
		if pdu.Indication {
			kind = "indicate"
		}
		logger.WithFields(logrus.Fields{
			"kind":  kind,
			"attr":  fmt.Sprintf("0x%04x", pdu.AttrHandle),
			"value": fmt.Sprintf("%x", pdu.Value),
		}).Debug("pushed")
	}

	stack.Disconnect(simConnHandle, 0x13) // remote user terminated
	logger.WithFields(logrus.Fields{
		"pushed":      len(stack.Sent()),
		"advertising": stack.Advertising(),
	}).Info("session complete")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
