// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package cmd implements the coredrive CLI: a thin cobra/viper shell
// around the core engine packages, standing in for the host application
// that drives the core through its callback and adapter traits.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile  string
	logLevel string
	apiHost  string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "coredrive",
	Short: "coredrive is a client-side engine for a MEGA-style cloud storage service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger()
	},
}

// Execute runs the CLI, returning the first error any command reports.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.coredrive.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&apiHost, "api-host", "g.api.coredrive.io", "server API host")

	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("api-host", rootCmd.PersistentFlags().Lookup("api-host"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".coredrive")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("COREDRIVE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

func initLogger() error {
	level := viper.GetString("log-level")
	if level == "" {
		level = logLevel
	}

	var zapLevel zap.AtomicLevel
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zapLevel
	built, err := cfg.Build()
	if err != nil {
		return err
	}
	logger = built
	return nil
}
