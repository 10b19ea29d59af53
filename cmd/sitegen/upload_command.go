package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/raysh454/sitegen/internal/apperr"
	"github.com/raysh454/sitegen/internal/upload"
)

func assetTypeList() string {
	types := upload.AssetTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <asset-type> <file>",
		Short: "Upload a logo, product image, hero image or catalog",
		Long:  "Upload an asset and print its public URL.\nAsset types: " + assetTypeList(),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := upload.ParseAssetType(args[0])
			if err != nil {
				return errors.New(apperr.UserMessage(err))
			}
			path := args[1]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}

			up, err := ctx.uploader()
			if err != nil {
				return err
			}

			errOut := cmd.ErrOrStderr()
			tty := isTerminal(errOut) && !ctx.jsonOutput()
			name := filepath.Base(path)
			onProgress := func(p int) {
				if tty {
					fmt.Fprintf(errOut, "\rUploading %s (%s) %3d%%", name, humanize.IBytes(uint64(info.Size())), p)
				}
			}

			obj, err := up.Upload(cmd.Context(), asset, name, f, info.Size(), onProgress)
			if tty {
				fmt.Fprintln(errOut)
			}
			if err != nil {
				return errors.New(apperr.UserMessage(err))
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, obj)
			}
			printf(cmd, "%s\nkey: %s (%s)\n", obj.URL, obj.Key, humanize.IBytes(uint64(obj.Size)))
			return nil
		},
	}
	cmd.AddCommand(newUploadDeleteCommand(ctx))
	return cmd
}

func newUploadDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete an uploaded asset by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			up, err := ctx.uploader()
			if err != nil {
				return err
			}
			if err := up.Delete(cmd.Context(), args[0]); err != nil {
				return errors.New(apperr.UserMessage(err))
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{"deleted": args[0]})
			}
			printf(cmd, "Deleted %s\n", args[0])
			return nil
		},
	}
}
