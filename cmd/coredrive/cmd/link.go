// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"coredrive.io/core/pkg/cryptoadapter"
	"coredrive.io/core/pkg/nodegraph"
	"coredrive.io/core/pkg/publiclink"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Create and inspect public links",
}

var (
	linkHandle   string
	linkKey      string
	linkFolder   bool
	linkHost     string
	linkPassword string
)

var linkCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a public link for a node handle and key",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := nodegraph.ParseHandle(linkHandle)
		if err != nil {
			return err
		}
		key, err := base64.RawURLEncoding.DecodeString(linkKey)
		if err != nil {
			return fmt.Errorf("decoding key: %w", err)
		}

		kind := publiclink.KindFile
		if linkFolder {
			kind = publiclink.KindFolder
		}

		if linkPassword == "" {
			l := publiclink.PlainLink{Host: linkHost, Kind: kind, Handle: h, FileKey: key}
			fmt.Println(l.String())
			return nil
		}

		var salt [32]byte
		if _, err := rand.Read(salt[:]); err != nil {
			return err
		}
		raw, err := publiclink.Encode(cryptoadapter.Default{}, kind, h, salt, linkPassword, key)
		if err != nil {
			return err
		}
		fmt.Printf("https://%s/%s#%s\n", linkHost, segmentFor(kind), base64.RawURLEncoding.EncodeToString(raw))
		return nil
	},
}

var linkOpenCmd = &cobra.Command{
	Use:   "open <url>",
	Short: "Decode a plain public link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := publiclink.ParsePlainLink(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("handle=%s key=%s kind=%v\n", l.Handle, base64.RawURLEncoding.EncodeToString(l.FileKey), l.Kind)
		return nil
	},
}

func segmentFor(kind publiclink.Kind) string {
	if kind == publiclink.KindFolder {
		return "folder"
	}
	return "file"
}

func init() {
	linkCreateCmd.Flags().StringVar(&linkHandle, "handle", "", "node public handle (base64url)")
	linkCreateCmd.Flags().StringVar(&linkKey, "key", "", "node key (base64url)")
	linkCreateCmd.Flags().BoolVar(&linkFolder, "folder", false, "this is a folder link")
	linkCreateCmd.Flags().StringVar(&linkHost, "host", "coredrive.io", "link host")
	linkCreateCmd.Flags().StringVar(&linkPassword, "password", "", "protect the link with a password")
	_ = linkCreateCmd.MarkFlagRequired("handle")
	_ = linkCreateCmd.MarkFlagRequired("key")

	linkCmd.AddCommand(linkCreateCmd, linkOpenCmd)
	rootCmd.AddCommand(linkCmd)
}
