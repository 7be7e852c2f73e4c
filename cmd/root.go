package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/projecteru2/core/log"
	coretypes "github.com/projecteru2/core/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/candlepin/virt-who/config"
	"github.com/candlepin/virt-who/launcher"
	"github.com/candlepin/virt-who/password"
)

var (
	cfgFile    string
	dropInDir  string
	keyfile    string
	debug      bool
	background bool
	oneshot    bool
	intervalS  int
	printOnly  bool
	statusMode bool
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "virt-who",
		Short:        "Collect and report hypervisor/guest associations to a subscription management service",
		SilenceUsage: true,
		RunE:         runRoot,
	}

	cmd.Flags().StringVarP(&cfgFile, "config", "c", "/etc/virt-who.conf", "main config file path")
	cmd.Flags().StringVar(&dropInDir, "config-dir", "/etc/virt-who.d", "drop-in *.conf directory")
	cmd.Flags().StringVar(&keyfile, "keyfile", "", "path to the encrypted_password keyfile, if any section uses one")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	cmd.Flags().BoolVarP(&background, "background", "b", false, "mark the run as a background run (stored in the configuration; the process stays in the foreground)")
	cmd.Flags().BoolVarP(&oneshot, "one-shot", "o", false, "collect and report once, then exit")
	cmd.Flags().IntVarP(&intervalS, "interval", "i", 0, "override the default collection interval, in seconds")
	cmd.Flags().BoolVar(&printOnly, "print", false, "set print mode in the configuration (no worker reads it; collected data is still sent)")
	cmd.Flags().BoolVar(&statusMode, "status", false, "report worker health instead of collecting")

	viper.SetEnvPrefix("VIRTWHO")
	viper.AutomaticEnv()

	cmd.AddCommand(passwordCmd)

	return cmd
}()

// Execute is the main entry point called from main.go.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

// ExecutePassword runs the virt-who-password standalone binary's entry point.
func ExecutePassword() error {
	return NewPasswordCommand("virt-who-password").Execute()
}

func runRoot(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	// Flags win; VIRTWHO_* environment variables fill in any flag left unset.
	if !debug {
		debug = viper.GetBool("debug")
	}
	if !background {
		background = viper.GetBool("background")
	}
	if !oneshot {
		oneshot = viper.GetBool("one_shot")
	}
	if intervalS == 0 {
		intervalS = viper.GetInt("interval")
	}

	logLevel := "info"
	if debug {
		logLevel = "debug"
	}
	if err := log.SetupLog(ctx, coretypes.ServerLogConfig{Level: logLevel}, ""); err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	logger := log.WithFunc("cmd.runRoot")

	loader := config.NewLoader(cfgFile, dropInDir)
	if keyfile != "" {
		loader.Keyfile = password.NewKeyfile(keyfile)
	}
	loader.WarnFunc = func(format string, args ...any) {
		logger.Warnf(ctx, format, args...)
	}

	ec, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ec.Debug = debug
	ec.Background = background
	ec.Oneshot = oneshot
	ec.Print = printOnly
	ec.Status = statusMode
	if intervalS > 0 {
		ec.Interval = time.Duration(intervalS) * time.Second
		if ec.Interval < config.MinimumInterval {
			ec.Interval = config.MinimumInterval
		}
	}

	l, err := launcher.New(ec, adapterFactory, clientFactory)
	if err != nil {
		return fmt.Errorf("building launcher: %w", err)
	}

	logger.Infof(ctx, "starting virt-who with %d configured source(s)", len(ec.Sections))
	return l.Run(ctx)
}
