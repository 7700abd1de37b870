package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"natural/internal/store"
)

// cacheCmd manages the implementation cache
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the implementation cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached implementations",
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached implementation",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func openCache() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Cache.Path == "" {
		return nil, fmt.Errorf("no cache path configured")
	}
	return store.Open(cfg.Cache.Path)
}

func runCacheList(cmd *cobra.Command, args []string) error {
	st, err := openCache()
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.List(commandContext(cmd))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "No cached implementations in %s\n", st.Path())
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tFUNCTION\tMODEL\tATTEMPTS\tHITS\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			shortKey(e.Key), e.Signature, e.Model, e.Attempts, e.Hits, e.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	st, err := openCache()
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.Clear(commandContext(cmd))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached implementation(s)\n", n)
	return nil
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
